package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	content := `
name: test-project
memory:
  project_root: .
  user_root: /tmp/agentmem-user
  limits:
    warn_bytes: 1000
    critical_bytes: 2000
    max_bytes: 3000
loader:
  max_bytes: 5000
  max_tokens: 800
  tokenizer: tiktoken
consolidate:
  command: sort -u
  timeout: 30s
index:
  enabled: false
logging:
  level: debug
  format: json
server:
  addr: ":9000"
`
	if err := os.WriteFile(filepath.Join(dir, "agentmem.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "test-project" {
		t.Errorf("expected name test-project, got %s", cfg.Name)
	}
	if cfg.Memory.Limits.MaxBytes != 3000 {
		t.Errorf("expected max_bytes 3000, got %d", cfg.Memory.Limits.MaxBytes)
	}
	if cfg.Memory.ProjectFile != "CLAUDE.md" {
		t.Errorf("expected default project file, got %s", cfg.Memory.ProjectFile)
	}
	if cfg.Loader.MaxTokens != 800 || cfg.Loader.Tokenizer != "tiktoken" {
		t.Errorf("unexpected loader config: %+v", cfg.Loader)
	}
	if d, err := cfg.Consolidate.ParsedTimeout(); err != nil || d.Seconds() != 30 {
		t.Errorf("expected 30s timeout, got %v (%v)", d, err)
	}
	if cfg.IndexEnabled() {
		t.Error("expected index disabled")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("expected format json, got %s", cfg.Logging.Format)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %s", cfg.Server.Addr)
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatal(err)
	}
	wantRoot, _ := filepath.Abs(dir)
	if sc.ProjectRoot != wantRoot {
		t.Errorf("expected project root %s, got %s", wantRoot, sc.ProjectRoot)
	}
	if sc.UserRoot != "/tmp/agentmem-user" {
		t.Errorf("expected user root /tmp/agentmem-user, got %s", sc.UserRoot)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()

	// Should return default config, not error
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "agentmem-project" {
		t.Errorf("expected default name, got %s", cfg.Name)
	}
	if cfg.Memory.Limits.WarnBytes != 61440 {
		t.Errorf("expected default warn threshold, got %d", cfg.Memory.Limits.WarnBytes)
	}
	if !cfg.IndexEnabled() {
		t.Error("expected index enabled by default")
	}
	if cfg.Dir() != dir {
		t.Errorf("expected dir %s, got %s", dir, cfg.Dir())
	}

	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.UserRoot != "" {
		t.Errorf("expected user scope disabled, got %s", sc.UserRoot)
	}
	ip, err := cfg.IndexPath()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(ip, filepath.Join(".claude-mpm", "index.db")) {
		t.Errorf("unexpected index path %s", ip)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	content := `{{{invalid yaml content`
	if err := os.WriteFile(filepath.Join(dir, "agentmem.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !errors.Is(err, memerrors.ErrConfigInvalid) {
		t.Errorf("expected CONFIG_INVALID, got %v", err)
	}
}

func TestLoad_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "agentmem.yml"), []byte("name: yml-project\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "yml-project" {
		t.Errorf("expected yml-project, got %s", cfg.Name)
	}
}

func TestLoad_EnvInterpolation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTMEM_TEST_USER_ROOT", "/srv/memories")
	t.Setenv("AGENTMEM_TEST_NAME", "from-env")
	content := "name: ${AGENTMEM_TEST_NAME}\nmemory:\n  user_root: ${env.AGENTMEM_TEST_USER_ROOT}\n"
	if err := os.WriteFile(filepath.Join(dir, "agentmem.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("expected from-env, got %s", cfg.Name)
	}
	if cfg.Memory.UserRoot != "/srv/memories" {
		t.Errorf("expected /srv/memories, got %s", cfg.Memory.UserRoot)
	}
}

func TestInterpolateEnv_KeepsUnknown(t *testing.T) {
	got := interpolateEnv("a: ${AGENTMEM_SURELY_UNSET_VAR}")
	if got != "a: ${AGENTMEM_SURELY_UNSET_VAR}" {
		t.Errorf("expected unknown var kept, got %s", got)
	}
}

func TestStoreConfig_TildeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := Default()
	cfg.SetDir(t.TempDir())
	cfg.Memory.UserRoot = "~"
	sc, err := cfg.StoreConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.UserRoot != home {
		t.Errorf("expected %s, got %s", home, sc.UserRoot)
	}

	cfg.Memory.UserRoot = "~/work"
	sc, err = cfg.StoreConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.UserRoot != filepath.Join(home, "work") {
		t.Errorf("expected %s, got %s", filepath.Join(home, "work"), sc.UserRoot)
	}
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "agentmem.yaml"), []byte("name: x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	want, _ := filepath.Abs(root)
	if got := Find(nested); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
