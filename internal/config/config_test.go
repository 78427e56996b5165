package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "value")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "45s")
	t.Setenv("TEST_SLICE", "a:9092, b:9092 ,,")

	if got := getEnv("TEST_STR", "def"); got != "value" {
		t.Errorf("getEnv() = %q, want %q", got, "value")
	}
	if got := getEnv("TEST_MISSING", "def"); got != "def" {
		t.Errorf("getEnv() missing = %q, want %q", got, "def")
	}
	if got := getEnvAsInt("TEST_INT", 0); got != 42 {
		t.Errorf("getEnvAsInt() = %d, want 42", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt() invalid = %d, want default 7", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Error("getEnvAsBool() = false, want true")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 45s", got)
	}

	slice := getEnvAsSlice("TEST_SLICE", nil, ",")
	if len(slice) != 2 || slice[0] != "a:9092" || slice[1] != "b:9092" {
		t.Errorf("getEnvAsSlice() = %v, want [a:9092 b:9092]", slice)
	}
	if got := getEnvAsSlice("TEST_MISSING", nil, ","); got != nil {
		t.Errorf("getEnvAsSlice() missing = %v, want nil", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONITOR_INTERVAL", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()
	if cfg.MonitorInterval != 30*time.Second {
		t.Errorf("MonitorInterval = %v, want 30s", cfg.MonitorInterval)
	}
	if cfg.HubPingInterval != 30*time.Second {
		t.Errorf("HubPingInterval = %v, want 30s", cfg.HubPingInterval)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want disabled", cfg.KafkaBrokers)
	}
}

func TestLoadSources(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, sources []Source)
	}{
		{
			name: "valid file",
			content: `sources:
  - name: OLX
    kind: html
    base_url: https://www.olx.ua
  - name: shop
    kind: api
    base_url: https://api.shop.example
    timeout: 3s
  - name: demo
    kind: mock
`,
			check: func(t *testing.T, sources []Source) {
				if len(sources) != 3 {
					t.Fatalf("got %d sources, want 3", len(sources))
				}
				if sources[0].Name != "olx" {
					t.Errorf("name not normalized: %q", sources[0].Name)
				}
				if sources[0].Timeout != 15*time.Second {
					t.Errorf("default timeout not applied: %v", sources[0].Timeout)
				}
				if sources[1].Timeout != 3*time.Second {
					t.Errorf("explicit timeout lost: %v", sources[1].Timeout)
				}
			},
		},
		{
			name:    "unknown kind",
			content: "sources:\n  - name: x\n    kind: browser\n",
			wantErr: true,
		},
		{
			name:    "html without base url",
			content: "sources:\n  - name: x\n    kind: html\n",
			wantErr: true,
		},
		{
			name:    "duplicate names",
			content: "sources:\n  - name: x\n    kind: mock\n  - name: X\n    kind: mock\n",
			wantErr: true,
		},
		{
			name:    "empty list",
			content: "sources: []\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sources.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write file: %v", err)
			}

			sources, err := LoadSources(path, 15*time.Second)
			if tt.wantErr {
				if err == nil {
					t.Fatal("LoadSources() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadSources() error: %v", err)
			}
			tt.check(t, sources)
		})
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	sources, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml"), 5*time.Second)
	if err != nil {
		t.Fatalf("LoadSources() error: %v", err)
	}
	if len(sources) != 1 || sources[0].Name != "olx" || sources[0].Timeout != 5*time.Second {
		t.Errorf("unexpected default sources: %+v", sources)
	}
}
