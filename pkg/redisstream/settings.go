package redisstream

// Settings holds Redis Streams transport configuration for Watermill.
type Settings struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "chat-ui",
		Consumer: "ui-1",
	}
}

// WithDefaults fills empty fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Addr == "" {
		s.Addr = d.Addr
	}
	if s.Group == "" {
		s.Group = d.Group
	}
	if s.Consumer == "" {
		s.Consumer = d.Consumer
	}
	return s
}
