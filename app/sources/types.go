package sources

// Source describes one GTFS-realtime feed the producer polls: where to
// fetch it, which family it belongs to, and which topic its entities are
// staged on. Family doubles as the dedup cache namespace.
type Source struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Family string `yaml:"family"`
	Topic  string `yaml:"topic"`
}
