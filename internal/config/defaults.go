package config

func Defaults() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:             "127.0.0.1:5612",
			Path:             "/ws",
			ConnectTimeoutMs: 5000,
			ReconnectDelayMs: 3000,
			DrainTimeoutMs:   10000,
		},
		API: APIConfig{
			TimeoutSeconds: 30,
			QueryRetries:   2,
			RetryBackoffMs: 1000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9612",
		},
		Simulator: SimulatorConfig{
			Addr: "127.0.0.1:5612",
		},
	}
}
