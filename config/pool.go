package config

// Coin 币种及其当前网络难度
type Coin struct {
	Id         string  `json:"id"`
	Difficulty float64 `json:"difficulty"`
}

// Pool 上游矿池
type Pool struct {
	Name          string       `json:"name"`
	Url           string       `json:"url"`
	Scheme        string       `json:"scheme"`
	Coin          string       `json:"coin"`
	Shares        uint64       `json:"shares"`
	ScoreConstant *float64     `json:"scoreConstant"`
	RateGHS       *float64     `json:"rateGhs"`
	Priority      int          `json:"priority"`
	Percentage    int          `json:"percentage"`
	Credentials   []Credential `json:"credentials"`
}

type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
