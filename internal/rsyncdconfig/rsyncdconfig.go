// Package rsyncdconfig holds the daemon's module-list configuration
// schema (spec.md §4.15) and its TOML loaders, grounded on the teacher's
// config file (module name/path/comment/ACL/writable flags).
package rsyncdconfig

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/oferchen/rsync-sub003/rsyncd"
)

// Listener is one configured daemon listen address.
type Listener struct {
	Rsyncd string `toml:"rsyncd"`
}

// Config is the top-level daemon configuration file schema.
type Config struct {
	Listeners []Listener     `toml:"listener"`
	Modules   []rsyncd.Module `toml:"module"`
}

// defaultPaths is tried in order by FromDefaultFiles, mirroring the
// teacher's search order for a system-wide config file.
var defaultPaths = []string{
	"/etc/gokr-rsyncd.toml",
	"gokr-rsyncd.toml",
}

// FromFile parses path as a Config.
func FromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromDefaultFiles tries each of defaultPaths in order, returning the
// first one found along with the Config it parsed to. The error from the
// last candidate is returned (so os.IsNotExist(err) still works) when
// none exist.
func FromDefaultFiles() (*Config, string, error) {
	var lastErr error
	for _, p := range defaultPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		cfg, err := FromFile(abs)
		if err == nil {
			return cfg, abs, nil
		}
		if !os.IsNotExist(err) {
			return nil, abs, err
		}
		lastErr = err
	}
	return nil, "", lastErr
}
