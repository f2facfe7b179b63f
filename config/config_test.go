package config

import "testing"

func TestLoadMergesGlobalAndLocal(t *testing.T) {
	cfg, err := Load("testdata", 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NumParties != 2 {
		t.Fatalf("NumParties: got %d, want 2", cfg.NumParties)
	}
	if cfg.FieldBits != 64 {
		t.Fatalf("FieldBits: got %d, want 64", cfg.FieldBits)
	}
	if cfg.CacheDir != "/tmp/cache0" {
		t.Fatalf("CacheDir: got %q, want local override /tmp/cache0", cfg.CacheDir)
	}
	if cfg.LocalNumThreads != 1 {
		t.Fatalf("LocalNumThreads: got %d, want default 1", cfg.LocalNumThreads)
	}
}

func TestConfigField(t *testing.T) {
	cfg, err := Load("testdata", 1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f, err := cfg.Field()
	if err != nil {
		t.Fatalf("Field: %v", err)
	}
	if f.Bits != 64 {
		t.Fatalf("Field: got %d bits, want 64", f.Bits)
	}
}

func TestServerAddrs(t *testing.T) {
	cfg, err := Load("testdata", 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	addrs, err := cfg.ServerAddrs("mpc")
	if err != nil {
		t.Fatalf("ServerAddrs: %v", err)
	}
	want := []string{"127.0.0.1:9000", "127.0.0.1:9001"}
	for i, w := range want {
		if addrs[i] != w {
			t.Fatalf("ServerAddrs[%d]: got %q, want %q", i, addrs[i], w)
		}
	}
}
