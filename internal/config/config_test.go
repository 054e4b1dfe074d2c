package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dcollect/internal/config"
)

// TestLoad_ExpandsEnvAndAppliesDefaults verifies env expansion and defaulting.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_ENDPOINT", "ws://127.0.0.1:5000")

	path := writeConfig(t, `
[collector]
endpoint = "${TEST_ENDPOINT}"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if got := cfg.Collector.Endpoint; got != "ws://127.0.0.1:5000" {
		t.Fatalf("unexpected endpoint: %q", got)
	}
	if cfg.Global.Origin == "" {
		t.Fatalf("expected origin hostname default")
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging to be enabled by default")
	}
	if got := cfg.Collector.Transport; got != "websocket" {
		t.Fatalf("unexpected default transport: %q", got)
	}
	if got := cfg.Collector.Channel; got != "/ws/data" {
		t.Fatalf("unexpected default channel: %q", got)
	}
	if got := cfg.Collector.QueueSize; got != 100 {
		t.Fatalf("unexpected default queue_size: %d", got)
	}
	if got := cfg.Collector.Dispatchers; got != 2 {
		t.Fatalf("unexpected default dispatchers: %d", got)
	}
	if got := cfg.Collector.Timeout.Duration; got != 5*time.Second {
		t.Fatalf("unexpected default timeout: %v", got)
	}
	if got := cfg.Collector.ReconnectInterval.Duration; got != 3*time.Second {
		t.Fatalf("unexpected default reconnect_interval: %v", got)
	}
	if got := cfg.Collector.MaxReconnectAttempts; got != 0 {
		t.Fatalf("unexpected default max_reconnect_attempts: %d", got)
	}
	if got := cfg.Collector.PollTimeout.Duration; got != 500*time.Millisecond {
		t.Fatalf("unexpected default poll_timeout: %v", got)
	}
	if got := cfg.Collector.DrainTimeout.Duration; got != 5*time.Second {
		t.Fatalf("unexpected default drain_timeout: %v", got)
	}
	if got := cfg.Collector.DisconnectTimeout.Duration; got != 3*time.Second {
		t.Fatalf("unexpected default disconnect_timeout: %v", got)
	}
	if got := cfg.Metrics.System.Sample.Duration; got != 10*time.Second {
		t.Fatalf("unexpected default metrics.system.sample: %v", got)
	}
}

// TestLoad_ConfigDirMergesTomlFiles verifies config directory loading and file-order merge.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirMergesTomlFiles(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"00-global.toml": `
[global]
origin = "db-main"
`,
		"10-collector.toml": `
[collector]
endpoint = "ws://127.0.0.1:5000"
queue_size = 250
`,
		"20-metrics.toml": `
[metrics.system]
enabled = true
sample = "2s"
`,
	})

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config dir: %v", err)
	}

	if cfg.Global.Origin != "db-main" {
		t.Fatalf("unexpected origin: %q", cfg.Global.Origin)
	}
	if cfg.Collector.QueueSize != 250 {
		t.Fatalf("unexpected queue_size: %d", cfg.Collector.QueueSize)
	}
	if !cfg.Metrics.System.Enabled {
		t.Fatalf("expected metrics.system to be enabled")
	}
	if got := cfg.Metrics.System.Sample.Duration; got != 2*time.Second {
		t.Fatalf("unexpected metrics.system.sample: %v", got)
	}
}

// TestLoad_ConfigDirRejectsWithoutToml verifies config dir validation on empty/non-toml-only directories.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirRejectsWithoutToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a config"), 0o644); err != nil {
		t.Fatalf("write non-toml file: %v", err)
	}

	_, err := config.Load(dir)
	if err == nil {
		t.Fatalf("expected error for config dir without *.toml")
	}
	if !strings.Contains(err.Error(), "no *.toml files") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoad_RejectsMissingEndpoint verifies fail-fast on required collector endpoint.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsMissingEndpoint(t *testing.T) {
	path := writeConfig(t, `
[global]
origin = "db1"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for missing collector.endpoint")
	}
}

// TestLoad_RejectsNonWebsocketScheme verifies websocket endpoint scheme validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsNonWebsocketScheme(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "http://127.0.0.1:5000"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for non-ws endpoint scheme")
	}
}

// TestLoad_ParsesGrpcTransport verifies grpc transport endpoint decoding.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesGrpcTransport(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "127.0.0.1:4317"
transport = "grpc"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if got := cfg.Collector.Transport; got != "grpc" {
		t.Fatalf("unexpected transport: %q", got)
	}
}

// TestLoad_RejectsGrpcEndpointWithoutPort verifies grpc endpoint validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsGrpcEndpointWithoutPort(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "collector.internal"
transport = "grpc"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for grpc endpoint without port")
	}
}

// TestLoad_RejectsUnknownTransport verifies transport enum validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsUnknownTransport(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"
transport = "carrier-pigeon"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for unknown collector.transport")
	}
}

// TestLoad_RejectsNegativeQueueSize verifies queue sizing validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsNegativeQueueSize(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"
queue_size = -5
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for negative collector.queue_size")
	}
}

// TestLoad_ParsesGlobalTags verifies metadata tag decoding and env expansion.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesGlobalTags(t *testing.T) {
	t.Setenv("TEST_ENV_TAG", "staging")

	path := writeConfig(t, `
[global]
origin = "db1"

[global.tags]
env = "${TEST_ENV_TAG}"
rack = "r12"

[collector]
endpoint = "ws://127.0.0.1:5000"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if got := cfg.Global.Tags["env"]; got != "staging" {
		t.Fatalf("unexpected env tag: %q", got)
	}
	if got := cfg.Global.Tags["rack"]; got != "r12" {
		t.Fatalf("unexpected rack tag: %q", got)
	}
}

// TestLoad_RejectsEmptySystemFilterMask verifies system source mask validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsEmptySystemFilterMask(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"

[metrics.system]
enabled = true
filter_types = ["cpu_*", ""]
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for empty metrics.system.filter_types entry")
	}
}

// TestLoad_RejectsFileSinkWithoutPath verifies file sink path validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsFileSinkWithoutPath(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"

[log.file]
enabled = true
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for log.file without path")
	}
}

// TestLoad_ParsesPprofConfig verifies pprof enable/listen parsing and default listen.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesPprofConfig(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"

[pprof]
enabled = true
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if !cfg.Pprof.Enabled {
		t.Fatalf("expected pprof to be enabled")
	}
	if got := cfg.Pprof.Listen; got != "127.0.0.1:6060" {
		t.Fatalf("unexpected pprof.listen default: %q", got)
	}
}

// TestLoad_RejectsInvalidStatsListen verifies stats listen validation.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_RejectsInvalidStatsListen(t *testing.T) {
	path := writeConfig(t, `
[collector]
endpoint = "ws://127.0.0.1:5000"

[stats]
enabled = true
listen = "invalid"
`)

	_, err := config.Load(path)
	if err == nil {
		t.Fatalf("expected validation error for invalid stats.listen")
	}
}

// writeConfig creates a temp TOML config for tests.
// Params: t test handle; body TOML content.
// Returns: absolute path to temp config.
func writeConfig(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

// writeConfigDir creates a temp config directory populated with provided files.
// Params: t test handle; files map[name]body.
// Returns: absolute directory path.
func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config file %q: %v", name, err)
		}
	}

	return dir
}
