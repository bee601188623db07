// Package conf loads the small amount of server configuration coredb needs
// beyond its CLI flags: listen address and buffer pool sizing, read from the
// optional INI file named by the -config flag.
package conf

import (
	"os"

	"github.com/gaoyinhao/MiniDB/pkg/logger"
	"gopkg.in/ini.v1"
)

// Config is coredb's server configuration.
type Config struct {
	Raw *ini.File

	BindAddress string
	Port        int

	BufferPoolPages int
	MemBudgetBytes  int64
}

// Default returns the built-in configuration, matching the CLI's documented
// defaults (spec.md §6, SPEC_FULL.md §6).
func Default() *Config {
	return &Config{
		Raw:             ini.Empty(),
		BindAddress:     "127.0.0.1",
		Port:            7900,
		BufferPoolPages: 50,
		MemBudgetBytes:  64 << 20,
	}
}

// Load reads path, if it exists, overlaying its [server]/[storage] sections
// onto the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	raw, err := ini.Load(path)
	if err != nil {
		logger.Warnf("conf: failed to parse %s, using defaults: %v", path, err)
		return cfg, nil
	}
	cfg.Raw = raw

	server := raw.Section("server")
	if key := server.Key("bind_address"); key.String() != "" {
		cfg.BindAddress = key.String()
	}
	if v, err := server.Key("port").Int(); err == nil && v != 0 {
		cfg.Port = v
	}

	storage := raw.Section("storage")
	if v, err := storage.Key("buffer_pool_pages").Int(); err == nil && v != 0 {
		cfg.BufferPoolPages = v
	}
	if v, err := storage.Key("mem_budget_bytes").Int64(); err == nil && v != 0 {
		cfg.MemBudgetBytes = v
	}

	return cfg, nil
}
