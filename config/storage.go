package config

const (
	DriverSqlite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

type Storage struct {
	Driver   string   `json:"driver"`
	Sqlite   Sqlite   `json:"sqlite"`
	Redis    Redis    `json:"redis"`
	Postgres Postgres `json:"postgres"`
}

type Sqlite struct {
	Path string `json:"path"`
}
