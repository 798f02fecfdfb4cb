package model

// Work 任务对象, getwork 的 result 字段
type Work struct {
	Data     string `json:"data" mapstructure:"data"`
	Target   string `json:"target,omitempty" mapstructure:"target"`
	Midstate string `json:"midstate,omitempty" mapstructure:"midstate"`
	Hash1    string `json:"hash1,omitempty" mapstructure:"hash1"`
}
