package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                3001,
			WriteTimeoutSeconds: 10,
			MaxMessageBytes:     1 << 20,
		},
		History: HistoryConfig{
			DBPath:          "~/.searchbot/history.db",
			MaxPromptTokens: 3000,
		},
		Stream: StreamConfig{
			ErrorPolicy: "terminal",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			APIBase:        "http://localhost:11434",
			ChatModel:      "llama3.1:8b",
			TimeoutSeconds: 120,
			MaxRetries:     3,
			MaxTokens:      2048,
			Temperature:    0.7,
		},
		Search: SearchConfig{
			SearxngURL:      "http://localhost:8080",
			TimeoutSeconds:  10,
			MaxResults:      10,
			MaxRetries:      2,
			CacheTTLSeconds: 300,
		},
		Image: ImageConfig{
			Enabled:        true,
			Renderer:       "browser",
			Theme:          "light",
			Width:          800,
			TimeoutSeconds: 90,
			MaxRetries:     1,
			OutputDir:      "~/.searchbot/images",
		},
		Uploads: UploadsConfig{
			Dir:          "~/.searchbot/uploads",
			MaxSizeBytes: 20 << 20,
		},
		Events: EventsConfig{
			Exchange:   "searchbot.events",
			RoutingKey: "chat.turn.completed",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
