package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp switches into a fresh directory for the duration of the test.
func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	tmpDir := chdirTemp(t)

	yamlContent := `
log:
  level: "debug"
graph_store:
  path: "/var/lib/metagraph/graph.db"
crawl:
  sample_size: 50
  timeout: "2m"
sources_file: "prod-sources.yaml"
`
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CRAWL_CONCURRENCY", "8")

	cfg, err := Load("", "test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Verify env vars override YAML
	if cfg.Log.Level != "warn" {
		t.Errorf("expected Log.Level=warn (from env), got %s", cfg.Log.Level)
	}
	if cfg.Crawl.Concurrency != 8 {
		t.Errorf("expected Crawl.Concurrency=8 (from env), got %d", cfg.Crawl.Concurrency)
	}

	// Verify YAML values were read
	if cfg.GraphStore.Path != "/var/lib/metagraph/graph.db" {
		t.Errorf("expected GraphStore.Path from yaml, got %s", cfg.GraphStore.Path)
	}
	if cfg.Crawl.SampleSize != 50 {
		t.Errorf("expected Crawl.SampleSize=50 (from yaml), got %d", cfg.Crawl.SampleSize)
	}
	if cfg.Crawl.Timeout != 2*time.Minute {
		t.Errorf("expected Crawl.Timeout=2m (from yaml), got %s", cfg.Crawl.Timeout)
	}
	if cfg.SourcesFile != "prod-sources.yaml" {
		t.Errorf("expected SourcesFile=prod-sources.yaml, got %s", cfg.SourcesFile)
	}

	// Verify defaults for unset fields
	if cfg.Crawl.ProfileSampleSize != 1000 {
		t.Errorf("expected default ProfileSampleSize=1000, got %d", cfg.Crawl.ProfileSampleSize)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
}

func TestLoad_MissingDefaultFileUsesEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("GRAPH_STORE_PATH", "from-env.db")

	cfg, err := Load("", "v")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.GraphStore.Path != "from-env.db" {
		t.Errorf("expected GraphStore.Path=from-env.db, got %s", cfg.GraphStore.Path)
	}
	if cfg.Crawl.Timeout != 10*time.Minute {
		t.Errorf("expected default Crawl.Timeout=10m, got %s", cfg.Crawl.Timeout)
	}
	if cfg.Metrics.PushURL != "" {
		t.Errorf("expected metrics push disabled by default, got %s", cfg.Metrics.PushURL)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)

	_, err := Load("nope.yaml", "v")
	if err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_RejectsInvalidConcurrency(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CRAWL_CONCURRENCY", "0")

	_, err := Load("", "v")
	if err == nil || !strings.Contains(err.Error(), "crawl.concurrency") {
		t.Fatalf("expected concurrency validation error, got %v", err)
	}
}
