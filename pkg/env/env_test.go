package env

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.SessionTTLMin != 30 {
		t.Errorf("expected session TTL 30, got %d", cfg.SessionTTLMin)
	}
	if cfg.ListenMaxRetries != 3 {
		t.Errorf("expected 3 listen retries, got %d", cfg.ListenMaxRetries)
	}
	if cfg.LLMMaxTokens != 150 || cfg.LLMTemperature != 0.7 {
		t.Errorf("unexpected completion budget: %d tokens, temperature %v", cfg.LLMMaxTokens, cfg.LLMTemperature)
	}
	if cfg.GroqModel != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected default model %q", cfg.GroqModel)
	}
}

func TestLoadHonoursLegacyDBType(t *testing.T) {
	t.Setenv("TZ", "UTC")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("DB_TYPE", "mongo")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StoreDriver != "mongo" {
		t.Errorf("expected mongo driver, got %q", cfg.StoreDriver)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreDriver:        "postgres",
			SessionStore:       "redis",
			SessionTTLMin:      30,
			ListenMaxRetries:   3,
			DialMaxConcurrency: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, true},
		{"unknown session store", func(c *Config) { c.SessionStore = "file" }, true},
		{"zero ttl", func(c *Config) { c.SessionTTLMin = 0 }, true},
		{"admin auth without secret", func(c *Config) {
			c.AdminAuthEnabled = true
			c.AdminPasswordHash = "hash"
		}, true},
		{"signature without base url", func(c *Config) {
			c.TwilioValidateSignature = true
			c.TwilioAuthToken = "token"
		}, true},
		{"admin auth configured", func(c *Config) {
			c.AdminAuthEnabled = true
			c.AdminPasswordHash = "hash"
			c.JWTSecret = "secret"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"*", nil},
		{"", nil},
		{"https://a.example.com", []string{"https://a.example.com"}},
		{"https://a.example.com, https://b.example.com,", []string{"https://a.example.com", "https://b.example.com"}},
	}
	for _, tt := range tests {
		got := (&Config{CORSAllowedOrigins: tt.raw}).AllowedOrigins()
		if len(got) != len(tt.want) {
			t.Errorf("%q: got %v, want %v", tt.raw, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%q: got %v, want %v", tt.raw, got, tt.want)
			}
		}
	}
}
