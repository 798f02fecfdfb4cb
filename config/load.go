package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"

	"bithopper/model"
	"bithopper/util"
)

// Load reads a JSON or TOML (by ".toml" extension) file on top of Default
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Unable to open configs file at %q: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if data, err = tomlToJSON(data); err != nil {
			return nil, fmt.Errorf("Unable to decode configs configuration: %w", err)
		}
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("Unable to decode configs configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// tomlToJSON re-encodes a TOML document as JSON so both formats share the
// json tags and the defaults already set on the target.
func tomlToJSON(data []byte) ([]byte, error) {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree.ToMap())
}

// Validate checks every value the engine later parses or dereferences.
func (c *Config) Validate() error {
	durations := map[string]string{
		"engine.rebuildInterval":  c.Engine.RebuildInterval,
		"engine.lagInterval":      c.Engine.LagInterval,
		"engine.pruneInterval":    c.Engine.PruneInterval,
		"engine.workMaxAge":       c.Engine.WorkMaxAge,
		"engine.flushInterval":    c.Engine.FlushInterval,
		"engine.hashrateInterval": c.Engine.HashrateInterval,
		"upstream.timeout":        c.Upstream.Timeout,
		"server.longPollTimeout":  c.Server.LongPollTimeout,
	}
	for name, value := range durations {
		if !util.IsDuration(value) {
			return fmt.Errorf("Invalid duration %s: %q", name, value)
		}
	}

	if c.Engine.LagProbeWorkers <= 0 {
		return errors.New("engine.lagProbeWorkers must be positive")
	}
	if c.Engine.WorkCacheSize <= 0 {
		return errors.New("engine.workCacheSize must be positive")
	}

	switch c.Storage.Driver {
	case DriverSqlite, DriverRedis, DriverPostgres:
	default:
		return fmt.Errorf("Unknown storage driver %q", c.Storage.Driver)
	}

	coins := make(map[string]struct{}, len(c.Coins))
	for _, coin := range c.Coins {
		if coin.Id == "" {
			return errors.New("coin without id")
		}
		coins[coin.Id] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.Pools))
	for _, pool := range c.Pools {
		if pool.Name == "" {
			return errors.New("pool without name")
		}
		if _, ok := names[pool.Name]; ok {
			return fmt.Errorf("Duplicate pool %q", pool.Name)
		}
		names[pool.Name] = struct{}{}

		if pool.Url == "" {
			return fmt.Errorf("Pool %q has no url", pool.Name)
		}
		p := model.Pool{Scheme: pool.Scheme}
		if !p.IsHoppable() && !p.IsSecure() {
			return fmt.Errorf("Pool %q has unknown scheme %q", pool.Name, pool.Scheme)
		}
		if _, ok := coins[pool.Coin]; !ok {
			return fmt.Errorf("Pool %q references unknown coin %q", pool.Name, pool.Coin)
		}
		if pool.Percentage < 0 || pool.Percentage > 100 {
			return fmt.Errorf("Pool %q percentage %d out of range", pool.Name, pool.Percentage)
		}
	}
	return nil
}
