package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds optional defaults for the CLI. Flags always win over
// file values; the file just keeps long filter expressions and
// populate targets out of shell history.
type Config struct {
	Command string   `yaml:"command"`
	Escape  string   `yaml:"escape"`
	DBs     []int    `yaml:"dbs"`
	Key     string   `yaml:"key"`
	NotKey  string   `yaml:"not_key"`
	Types   []string `yaml:"types"`

	// Memory report options.
	Bytes        int64  `yaml:"bytes"`
	Largest      int    `yaml:"largest"`
	Arch         int    `yaml:"arch"`
	RedisVersion string `yaml:"redis_version"`

	// Protocol emitter options.
	NoExpire    bool  `yaml:"no_expire"`
	AmendExpire int64 `yaml:"amend_expire"`

	Populate Populate `yaml:"populate"`
}

// Populate targets the fixture generator at a live Redis.
type Populate struct {
	Addr     string  `yaml:"addr"`
	Password string  `yaml:"password"`
	DB       int     `yaml:"db"`
	Rate     float64 `yaml:"rate"` // writes per second, 0 = unlimited
}

var validCommands = map[string]bool{
	"": true, "json": true, "diff": true, "justkeys": true,
	"justkeyvals": true, "memory": true, "protocol": true,
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the CLI would also reject, so a bad file
// fails before any parsing starts.
func (c *Config) Validate() error {
	if !validCommands[c.Command] {
		return fmt.Errorf("invalid command %q", c.Command)
	}
	switch c.Escape {
	case "", "raw", "print", "utf8", "base64":
	default:
		return fmt.Errorf("invalid escape %q", c.Escape)
	}
	switch c.Arch {
	case 0, 32, 64:
	default:
		return fmt.Errorf("invalid arch %d: want 32 or 64", c.Arch)
	}
	if c.Bytes < 0 {
		return fmt.Errorf("bytes must be non-negative")
	}
	if c.Largest < 0 {
		return fmt.Errorf("largest must be non-negative")
	}
	if c.Populate.Rate < 0 {
		return fmt.Errorf("populate rate must be non-negative")
	}
	return nil
}
