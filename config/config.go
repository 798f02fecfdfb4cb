package config

type Config struct {
	Name     string   `json:"name"`
	Logger   Logger   `json:"logger"`
	Engine   Engine   `json:"engine"`
	Upstream Upstream `json:"upstream"`
	Server   Server   `json:"server"`
	Storage  Storage  `json:"storage"`
	Coins    []Coin   `json:"coins"`
	Pools    []Pool   `json:"pools"`
}

// Default returns the configuration every file is decoded on top of.
func Default() *Config {
	return &Config{
		Name: "bithopper",
		Logger: Logger{
			Level:  "info",
			Format: "text",
		},
		Engine: Engine{
			RebuildInterval:  "5s",
			LagInterval:      "60s",
			LagProbeWorkers:  8,
			PruneInterval:    "60s",
			WorkMaxAge:       "20m",
			WorkCacheSize:    100000,
			FlushInterval:    "30s",
			HashrateInterval: "60s",
		},
		Upstream: Upstream{
			Timeout: "10s",
		},
		Server: Server{
			Enabled:         true,
			Listen:          "127.0.0.1:8337",
			LongPollTimeout: "10m",
		},
		Storage: Storage{
			Driver: DriverSqlite,
			Sqlite: Sqlite{Path: "bithopper.db"},
			Redis: Redis{
				Url:    "127.0.0.1:6379",
				Prefix: "bithopper",
			},
		},
	}
}
