// Package config loads the kernel's toml-backed party/global configuration,
// following the teacher's InitProtocol (sfgwas.go) split of a global file
// shared by every party and a per-party local file.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/onet/v3/log"

	"github.com/hhcho/ring2k-kernel/sharetype"
)

// Server names one party's network address, mirroring the teacher's
// mpc.Server (IpAddr + per-peer port table).
type Server struct {
	IpAddr string            `toml:"ip_addr"`
	Ports  map[string]string `toml:"ports"`
}

// Config is the merged global+local configuration for one party.
type Config struct {
	NumParties int `toml:"num_parties"`
	DealerPid  int `toml:"dealer_party_id"`

	FieldBits int `toml:"field_bits"`

	SharedKeysPath string `toml:"shared_keys_path"`

	LocalNumThreads int `toml:"local_num_threads"`
	MemoryLimit     uint64 `toml:"memory_limit_bytes"`

	Servers map[string]Server `toml:"servers"`

	CacheDir string `toml:"cache_dir"`
	OutDir   string `toml:"out_dir"`
}

// Field resolves the configured ring width to a sharetype.Field.
func (c *Config) Field() (sharetype.Field, error) {
	f, ok := sharetype.FieldByBits(c.FieldBits)
	if !ok {
		return sharetype.Field{}, fmt.Errorf("config: unsupported field_bits %d", c.FieldBits)
	}
	return f, nil
}

// Load reads configGlobal.toml then configLocal.Party<pid>.toml from dir,
// the local file's keys overriding the global file's, exactly as the
// teacher's InitProtocol does with two sequential toml.DecodeFile calls into
// the same struct.
func Load(dir string, pid int) (*Config, error) {
	cfg := &Config{}

	if _, err := toml.DecodeFile(filepath.Join(dir, "configGlobal.toml"), cfg); err != nil {
		return nil, fmt.Errorf("config: global: %w", err)
	}
	local := filepath.Join(dir, fmt.Sprintf("configLocal.Party%d.toml", pid))
	if _, err := toml.DecodeFile(local, cfg); err != nil {
		return nil, fmt.Errorf("config: local: %w", err)
	}

	if cfg.LocalNumThreads <= 0 {
		cfg.LocalNumThreads = 1
	}
	log.LLvl1(fmt.Sprintf("config: loaded party %d, %d parties, field_bits=%d", pid, cfg.NumParties, cfg.FieldBits))
	return cfg, nil
}

// ServerAddrs returns the party addresses in rank order 0..NumParties-1,
// resolved against a named port key (the teacher indexes Ports by purpose,
// e.g. "mpc"), for DialTCPGroup.
func (c *Config) ServerAddrs(portKey string) ([]string, error) {
	out := make([]string, c.NumParties)
	for i := 0; i < c.NumParties; i++ {
		srv, ok := c.Servers[fmt.Sprintf("party%d", i)]
		if !ok {
			return nil, fmt.Errorf("config: missing server entry for party%d", i)
		}
		port, ok := srv.Ports[portKey]
		if !ok {
			return nil, fmt.Errorf("config: party%d missing port %q", i, portKey)
		}
		out[i] = fmt.Sprintf("%s:%s", srv.IpAddr, port)
	}
	return out, nil
}
