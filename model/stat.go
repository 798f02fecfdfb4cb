package model

import "time"

// Stat 账户在某一难度下的份额统计
type Stat struct {
	tableName struct{} `pg:"stats"`

	Pool       string    `pg:"pool,pk"`
	Username   string    `pg:"username,pk"`
	Password   string    `pg:"password,pk"`
	Difficulty float64   `pg:"difficulty,pk"`
	Issued     uint64    `pg:"issued,use_zero"`
	Accepted   uint64    `pg:"accepted,use_zero"`
	Rejected   uint64    `pg:"rejected,use_zero"`
	UpdatedAt  time.Time `pg:"updated_at"`
}

// Key returns the in-memory key of the row.
func (s *Stat) Key() StatKey {
	return StatKey{
		Credential: Credential{Pool: s.Pool, Username: s.Username, Password: s.Password},
		Difficulty: s.Difficulty,
	}
}
