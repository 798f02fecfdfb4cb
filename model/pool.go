package model

// 收益方式
const (
	SchemeProp  string = "prop"
	SchemeScore        = "score"
	SchemePplns        = "pplns"
	SchemePps          = "pps"
	SchemeSmpps        = "smpps"
	SchemeDgm          = "dgm"
)

// Pool is an upstream mining pool as published by the metadata provider.
type Pool struct {
	Name   string `json:"name"`
	Url    string `json:"url"`
	Scheme string `json:"scheme"`
	Shares uint64 `json:"shares"`
	Coin   string `json:"coin"`

	// ScoreConstant is the "c" of score-based payouts, nil when unknown.
	ScoreConstant *float64 `json:"scoreConstant,omitempty"`
	// RateGHS is the pool's estimated hash rate, nil when unknown.
	RateGHS *float64 `json:"rateGhs,omitempty"`
}

// IsHoppable 收益取决于本轮份额数的收益方式
func (p *Pool) IsHoppable() bool {
	return p.Scheme == SchemeProp || p.Scheme == SchemeScore
}

// IsSecure 不受跳池影响的收益方式
func (p *Pool) IsSecure() bool {
	switch p.Scheme {
	case SchemePps, SchemeSmpps, SchemePplns, SchemeDgm:
		return true
	}
	return false
}
