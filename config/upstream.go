package config

type Upstream struct {
	Timeout string `json:"timeout"`
}
