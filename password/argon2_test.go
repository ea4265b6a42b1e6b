package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	hasher, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("hasher construction failed: %v", err)
	}
	return hasher
}

func cheapConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestNewArgon2RejectsWeakParameters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"memory", func(c *Config) { c.Memory = 1024 }},
		{"time", func(c *Config) { c.Time = 0 }},
		{"parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"salt", func(c *Config) { c.SaltLength = 8 }},
		{"key", func(c *Config) { c.KeyLength = 8 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := cheapConfig()
			tc.mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected construction to fail")
			}
		})
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher := testHasher(t, cheapConfig())

	hash, err := hasher.Hash("Sunset-Blvd-1950")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("not a PHC string: %q", hash)
	}

	ok, err := hasher.Verify("Sunset-Blvd-1950", hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Fatal("correct secret must verify")
	}

	ok, err = hasher.Verify("wrong-secret", hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong secret must not verify")
	}

	// Fresh salts make identical secrets hash differently.
	other, err := hasher.Hash("Sunset-Blvd-1950")
	if err != nil {
		t.Fatalf("second hash failed: %v", err)
	}
	if other == hash {
		t.Fatal("two hashes of the same secret must differ")
	}

	if _, err := hasher.Hash(""); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	hasher := testHasher(t, cheapConfig())

	for _, bad := range []string{
		"",
		"plain-text",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		if _, err := hasher.Verify("secret", bad); err == nil {
			t.Fatalf("hash %q must not parse", bad)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := testHasher(t, cheapConfig())
	hash, err := weak.Hash("Sunset-Blvd-1950")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	upgrade, err := weak.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("needs upgrade failed: %v", err)
	}
	if upgrade {
		t.Fatal("hash at current parameters must not need an upgrade")
	}

	strongCfg := cheapConfig()
	strongCfg.Memory = 64 * 1024
	strong := testHasher(t, strongCfg)
	upgrade, err = strong.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("needs upgrade failed: %v", err)
	}
	if !upgrade {
		t.Fatal("hash below configured memory must need an upgrade")
	}
}
