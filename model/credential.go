package model

// Credential identifies a miner account on an upstream pool.
type Credential struct {
	Pool     string `json:"pool"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// StatKey 统计键: 账户 + 当时的网络难度
type StatKey struct {
	Credential
	Difficulty float64
}
