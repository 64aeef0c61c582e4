package sources

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/railwatch/gtfs-rt-pipeline/app/feed"
)

// Loader reads feed source definitions from YAML files in a directory,
// one source per file.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll loads every *.yaml / *.yml file in the sources directory. A
// missing directory yields an empty list, not an error.
func (l *Loader) LoadAll() ([]Source, error) {
	if _, err := os.Stat(l.dir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("finding YAML files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.dir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("finding YML files: %w", err)
	}
	files = append(files, ymlFiles...)
	sort.Strings(files)

	var srcs []Source
	for _, file := range files {
		src, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", file, err)
		}
		srcs = append(srcs, src)
		slog.Info("Loaded feed source", "name", src.Name, "family", src.Family, "topic", src.Topic)
	}

	return srcs, nil
}

func (l *Loader) loadFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("reading file: %w", err)
	}

	var src Source
	if err := yaml.Unmarshal(data, &src); err != nil {
		return Source{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if src.Name == "" {
		base := filepath.Base(path)
		src.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := validate(src); err != nil {
		return Source{}, err
	}

	return src, nil
}

func validate(src Source) error {
	if src.URL == "" {
		return fmt.Errorf("source %s: url is required", src.Name)
	}
	if src.Topic == "" {
		return fmt.Errorf("source %s: topic is required", src.Name)
	}
	switch src.Family {
	case feed.FamilyTripUpdate, feed.FamilyServiceAlert:
		return nil
	default:
		return fmt.Errorf("source %s: family must be %q or %q, got %q",
			src.Name, feed.FamilyTripUpdate, feed.FamilyServiceAlert, src.Family)
	}
}
