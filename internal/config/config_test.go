package config

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Indexes: IndexesConfig{
			Text:   IndexConfig{Driver: "memory", SnapshotPath: "text.ndjson"},
			Visual: IndexConfig{Driver: "memory", SnapshotPath: "visual.ndjson"},
		},
	}
}

func TestValidate_PortRange(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.HTTP.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}
	cfg.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port above 65535")
	}
}

func TestValidate_UnknownIndexDriver(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	cfg.Indexes.Text.Driver = "pinecone"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `indexes.text: unknown driver "pinecone"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		name string
		idx  IndexConfig
		ok   bool
	}{
		{"unconfigured allowed", IndexConfig{}, true},
		{"vectorize missing account", IndexConfig{Driver: "vectorize", IndexName: "x"}, false},
		{"vectorize missing index name", IndexConfig{Driver: "vectorize", AccountID: "a"}, false},
		{"vectorize complete", IndexConfig{Driver: "vectorize", AccountID: "a", IndexName: "x"}, true},
		{"redis missing addrs", IndexConfig{Driver: "redis"}, false},
		{"redis with addrs", IndexConfig{Driver: "redis", Addrs: []string{"localhost:6379"}}, true},
		{"memory missing snapshot", IndexConfig{Driver: "memory"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Indexes.Visual = tt.idx
			cfg.ApplyDefaults()

			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidate_DimensionsMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()
	cfg.Indexes.Visual.Dimensions = 1024 // visual embeds in 512

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for index/embedding dimension mismatch")
	}
	expected := "indexes.visual.dimensions 1024 does not match embedding.visual.dimensions 512"
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_MaxLimitBelowDefault(t *testing.T) {
	cfg := validConfig()
	cfg.Search = SearchConfig{DefaultLimit: 50, MaxLimit: 10}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for max_limit below default_limit")
	}
}

func TestApplyDefaults_SpaceDimensions(t *testing.T) {
	cfg := validConfig()
	cfg.ApplyDefaults()

	if cfg.Embedding.Text.Dimensions != 1024 {
		t.Errorf("text dimensions = %d, want 1024", cfg.Embedding.Text.Dimensions)
	}
	if cfg.Embedding.Visual.Dimensions != 512 {
		t.Errorf("visual dimensions = %d, want 512", cfg.Embedding.Visual.Dimensions)
	}
	if cfg.Indexes.Text.Dimensions != 1024 || cfg.Indexes.Visual.Dimensions != 512 {
		t.Errorf("index dimensions = %d/%d, want 1024/512",
			cfg.Indexes.Text.Dimensions, cfg.Indexes.Visual.Dimensions)
	}
	if cfg.Search.TopK != 50 {
		t.Errorf("top_k = %d, want 50", cfg.Search.TopK)
	}
}

func TestLexicalFallbackDefaultsTrue(t *testing.T) {
	var s SearchConfig
	if !s.LexicalFallbackEnabled() {
		t.Fatal("fallback should default to enabled")
	}

	off := false
	s.LexicalFallback = &off
	if s.LexicalFallbackEnabled() {
		t.Fatal("explicit false should disable fallback")
	}
}

func TestIndexConfig_RedisConnectionFields(t *testing.T) {
	raw := []byte(`
driver: redis
addrs: ["localhost:6379"]
username: fonds
password: s3cret
db: 2
index_name: photos-visual
`)
	var idx IndexConfig
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if idx.Username != "fonds" || idx.Password != "s3cret" || idx.DB != 2 {
		t.Errorf("connection fields = %q/%q/%d, want fonds/s3cret/2",
			idx.Username, idx.Password, idx.DB)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FONDS_TEST_VAR", "hello")

	tests := []struct {
		in   string
		want string
	}{
		{"value: ${FONDS_TEST_VAR}", "value: hello"},
		{"value: ${FONDS_TEST_UNSET:-fallback}", "value: fallback"},
		{"value: ${FONDS_TEST_VAR:-fallback}", "value: hello"},
		{"value: ${FONDS_TEST_UNSET}", "value: "},
		{"value: plain", "value: plain"},
	}

	for _, tt := range tests {
		if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
