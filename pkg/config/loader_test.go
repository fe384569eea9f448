package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/jupiter/pkg/core"
)

const sampleConfig = `
listen_address: ":9090"
default_provider: openai
instances:
  openai:
    - name: openai-primary
      base_url: https://api.openai.com
      auth_mode: bearer
      api_key: sk-test
      priority: 1
      weight: 100
      timeout: 45s
      failure_cool_down: 20s
routing:
  - prefix: "gpt-"
    provider: openai
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesInstancesAndRouting(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	providers, rules, principals, defaultProvider, listen, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(principals) != 0 {
		t.Errorf("principals = %v, want none", principals)
	}

	if listen != ":9090" {
		t.Errorf("listen = %q, want :9090", listen)
	}
	if defaultProvider != "openai" {
		t.Errorf("defaultProvider = %q, want openai", defaultProvider)
	}

	insts, ok := providers["openai"]
	if !ok || len(insts) != 1 {
		t.Fatalf("providers[openai] = %v", insts)
	}
	got := insts[0]
	if got.Name != "openai-primary" || got.Provider != core.ProviderOpenAI {
		t.Errorf("unexpected instance: %+v", got)
	}
	if got.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v, want 45s", got.Timeout)
	}
	if got.FailureCoolDown != 20*time.Second {
		t.Errorf("FailureCoolDown = %v, want 20s", got.FailureCoolDown)
	}

	if len(rules) != 1 || rules[0].Prefix != "gpt-" || rules[0].Provider != "openai" {
		t.Errorf("unexpected rules: %+v", rules)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
instances:
  openai:
    - name: minimal
      base_url: https://api.openai.com
`)

	providers, _, _, _, listen, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if listen != defaultListenAddress {
		t.Errorf("listen = %q, want default %q", listen, defaultListenAddress)
	}
	inst := providers["openai"][0]
	if inst.AuthMode != core.AuthBearer {
		t.Errorf("AuthMode = %q, want default bearer", inst.AuthMode)
	}
	if inst.Timeout != defaultTimeout {
		t.Errorf("Timeout = %v, want default %v", inst.Timeout, defaultTimeout)
	}
	if inst.Weight != defaultWeight {
		t.Errorf("Weight = %d, want default %d", inst.Weight, defaultWeight)
	}
}

func TestLoadRejectsInstanceMissingBaseURL(t *testing.T) {
	path := writeTempConfig(t, `
instances:
  openai:
    - name: broken
`)
	if _, _, _, _, _, err := Load(path); err == nil {
		t.Fatal("expected an error for a missing base_url")
	}
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	if _, _, _, _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadResolvesAPIKeyFromEnv(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	path := writeTempConfig(t, `
instances:
  openai:
    - name: env-backed
      base_url: https://api.openai.com
      api_key_env: TEST_OPENAI_KEY
`)
	providers, _, _, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := providers["openai"][0].APIKey; got != "sk-from-env" {
		t.Errorf("APIKey = %q, want sk-from-env", got)
	}
}

func TestLoadParsesPrincipals(t *testing.T) {
	path := writeTempConfig(t, `
instances:
  openai:
    - name: minimal
      base_url: https://api.openai.com
principals:
  - key: sk-alice
    name: alice
  - key: sk-bob
    name: bob
    enabled: false
`)
	_, _, principals, _, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(principals) != 2 {
		t.Fatalf("principals = %v, want 2", principals)
	}
	byKey := make(map[string]bool)
	for _, p := range principals {
		byKey[p.Key] = p.Enabled
	}
	if enabled, ok := byKey["sk-alice"]; !ok || !enabled {
		t.Errorf("sk-alice should default to enabled")
	}
	if enabled, ok := byKey["sk-bob"]; !ok || enabled {
		t.Errorf("sk-bob should be disabled")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	providers, rules, _, defaultProvider, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := core.NewRegistry(providers, rules, defaultProvider)

	w, err := NewWatcher(path, reg, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	updated := `
instances:
  openai:
    - name: openai-primary
      base_url: https://api.openai.com
      priority: 1
    - name: openai-secondary
      base_url: https://api.openai.com
      priority: 2
routing:
  - prefix: "gpt-"
    provider: openai
`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entry, ok := reg.Snapshot().Provider("openai")
		if ok && len(entry.Instances) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry was not reloaded with the updated instance count")
}
