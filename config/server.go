package config

type Server struct {
	Enabled         bool   `json:"enabled"`
	Listen          string `json:"listen"`
	LongPollTimeout string `json:"longPollTimeout"`
}
