package config

// Engine 调度引擎的周期与容量
type Engine struct {
	RebuildInterval  string `json:"rebuildInterval"`
	LagInterval      string `json:"lagInterval"`
	LagProbeWorkers  int    `json:"lagProbeWorkers"`
	PruneInterval    string `json:"pruneInterval"`
	WorkMaxAge       string `json:"workMaxAge"`
	WorkCacheSize    int    `json:"workCacheSize"`
	FlushInterval    string `json:"flushInterval"`
	HashrateInterval string `json:"hashrateInterval"`
}
