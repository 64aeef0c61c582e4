// Package static refreshes the GTFS reference tables (agency, stops,
// routes, trips) from a static dataset zip. It runs at a much lower
// frequency than the realtime pipeline and shares its batch writer.
package static

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"github.com/railwatch/gtfs-rt-pipeline/app/database"
	"github.com/railwatch/gtfs-rt-pipeline/app/pipeline"
)

const (
	// Fallbacks mirroring the cleaning applied to the source dump.
	defaultParentStation = "No_parent_station"
	defaultDirectionID   = -1
)

// Refresh downloads the static dataset and replaces the reference tables
// in one transaction, parents before children.
func Refresh(ctx context.Context, url string, writer pipeline.BatchWriter) (int, error) {
	buf, err := download(ctx, url)
	if err != nil {
		return 0, err
	}

	ds, err := ParseZip(buf)
	if err != nil {
		return 0, err
	}

	written, err := writer.WriteBatches(ctx, Batches(ds)...)
	if err != nil {
		return 0, fmt.Errorf("writing static tables: %w", err)
	}

	slog.Info("Static dataset refreshed", "agencies", len(ds.Agencies),
		"stops", len(ds.Stops), "routes", len(ds.Routes), "trips", len(ds.Trips))
	return written, nil
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading dataset: unexpected status %d", resp.StatusCode)
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading dataset body: %w", err)
	}
	return buf, nil
}

// ParseZip extracts the four reference files from a GTFS zip. Missing
// files yield empty slices rather than an error, since agencies ship
// varying subsets.
func ParseZip(buf []byte) (*Dataset, error) {
	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	ds := &Dataset{}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Some agencies nest the files in a subdirectory.
		path := strings.Split(f.Name, "/")
		name := path[len(path)-1]

		var parse func(io.Reader) error
		switch name {
		case "agency.txt":
			parse = func(rd io.Reader) error { return gocsv.Unmarshal(rd, &ds.Agencies) }
		case "stops.txt":
			parse = func(rd io.Reader) error { return gocsv.Unmarshal(rd, &ds.Stops) }
		case "routes.txt":
			parse = func(rd io.Reader) error { return gocsv.Unmarshal(rd, &ds.Routes) }
		case "trips.txt":
			parse = func(rd io.Reader) error { return gocsv.Unmarshal(rd, &ds.Trips) }
		default:
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		err = parse(bom.NewReader(rc))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
	}

	return ds, nil
}

// Batches converts a dataset to write batches in foreign-key order:
// agency and stops first, then routes, then trips.
func Batches(ds *Dataset) []database.Batch {
	agency := database.Batch{
		Table:   "agency",
		KeyCols: []string{"agency_id"},
		Columns: []string{"agency_id", "agency_name", "agency_url", "agency_timezone"},
	}
	for _, a := range ds.Agencies {
		agency.Rows = append(agency.Rows, []any{a.ID, a.Name, a.URL, a.Timezone})
	}

	stops := database.Batch{
		Table:   "stops",
		KeyCols: []string{"stop_id"},
		Columns: []string{"stop_id", "stop_name", "stop_lat", "stop_lon", "parent_station"},
	}
	for _, s := range ds.Stops {
		parent := s.ParentStation
		if parent == "" {
			parent = defaultParentStation
		}
		stops.Rows = append(stops.Rows, []any{s.ID, s.Name, s.Lat, s.Lon, parent})
	}

	routes := database.Batch{
		Table:   "routes",
		KeyCols: []string{"route_id"},
		Columns: []string{"route_id", "agency_id", "route_short_name", "route_long_name", "route_type"},
	}
	for _, r := range ds.Routes {
		routes.Rows = append(routes.Rows, []any{r.ID, r.AgencyID, r.ShortName, r.LongName, r.Type})
	}

	trips := database.Batch{
		Table:   "trips",
		KeyCols: []string{"trip_id"},
		Columns: []string{"trip_id", "route_id", "service_id", "trip_headsign", "direction_id"},
	}
	for _, t := range ds.Trips {
		direction := defaultDirectionID
		if t.DirectionID != "" {
			if d, err := strconv.Atoi(t.DirectionID); err == nil {
				direction = d
			}
		}
		trips.Rows = append(trips.Rows, []any{t.ID, t.RouteID, t.ServiceID, t.Headsign, direction})
	}

	return []database.Batch{agency, stops, routes, trips}
}
