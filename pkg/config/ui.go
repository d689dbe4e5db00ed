package config

// UIConfig controls the optional HTTP/WebSocket event server consumed by
// the browser dashboard. The server carries no orchestration logic.
type UIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`

	// AllowedOrigins are additional WebSocket origin patterns accepted
	// besides same-host.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultUIConfig returns the built-in UI defaults. Disabled unless the
// operator passes --ui.
func DefaultUIConfig() *UIConfig {
	return &UIConfig{
		Enabled: false,
		Port:    7777,
	}
}
