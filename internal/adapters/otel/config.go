package otel

// Config holds OTEL exporter configuration.
type Config struct {
	Endpoint string
	Enabled  bool
	Insecure bool
}

// Active reports whether metrics should be exported.
func (c Config) Active() bool {
	return c.Enabled && c.Endpoint != ""
}
