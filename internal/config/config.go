package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultLogLevel          = "info"
	defaultConsoleFormat     = "line"
	defaultFileFormat        = "json"
	defaultChannel           = "/ws/data"
	defaultTransport         = "websocket"
	defaultSendTimeout       = 5 * time.Second
	defaultReconnectInterval = 3 * time.Second
	defaultQueueSize         = 100
	defaultDispatchers       = 2
	defaultPollTimeout       = 500 * time.Millisecond
	defaultDrainTimeout      = 5 * time.Second
	defaultDisconnectTimeout = 3 * time.Second
	defaultSystemSample      = 10 * time.Second
	defaultStatsListen       = "127.0.0.1:9137"
	defaultPprofListen       = "127.0.0.1:6060"
)

// Duration wraps time.Duration for TOML parsing.
// Params: embedded stdlib duration value.
// Returns: duration usable directly in config structs.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root agent configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Global    GlobalConfig    `toml:"global"`
	Log       LogConfig       `toml:"log"`
	Pprof     PprofConfig     `toml:"pprof"`
	Stats     StatsConfig     `toml:"stats"`
	Collector CollectorConfig `toml:"collector"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// GlobalConfig contains event identity shared by every produced event.
// Params: origin name and optional metadata tags.
// Returns: global event settings.
type GlobalConfig struct {
	Origin string            `toml:"origin"`
	Tags   map[string]string `toml:"tags"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// PprofConfig defines the optional runtime pprof HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: pprof runtime settings.
type PprofConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// StatsConfig defines the observability HTTP endpoint serving delivery
// counters and liveness/readiness probes.
// Params: enabled flag and listen address in host:port format.
// Returns: observability runtime settings.
type StatsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// CollectorConfig defines the remote collector endpoint and delivery behavior.
// Params: endpoint identity, transport name, queue and dispatcher sizing,
// reconnect policy, shutdown timeouts.
// Returns: collector runtime config.
type CollectorConfig struct {
	Endpoint             string   `toml:"endpoint"`
	Channel              string   `toml:"channel"`
	Transport            string   `toml:"transport"`
	Timeout              Duration `toml:"timeout"`
	ReconnectInterval    Duration `toml:"reconnect_interval"`
	MaxReconnectAttempts uint     `toml:"max_reconnect_attempts"`
	QueueSize            int      `toml:"queue_size"`
	Dispatchers          int      `toml:"dispatchers"`
	PollTimeout          Duration `toml:"poll_timeout"`
	DrainTimeout         Duration `toml:"drain_timeout"`
	DisconnectTimeout    Duration `toml:"disconnect_timeout"`
}

// MetricsConfig groups built-in metric source settings.
// Params: per-source sections.
// Returns: source configuration.
type MetricsConfig struct {
	System SystemSourceConfig `toml:"system"`
}

// SystemSourceConfig defines the built-in OS metrics sampler.
// Params: enable flag, sample interval, and metric-type masks.
// Returns: system source runtime config.
type SystemSourceConfig struct {
	Enabled     bool     `toml:"enabled"`
	Sample      Duration `toml:"sample"`
	FilterTypes []string `toml:"filter_types"`
	DropTypes   []string `toml:"drop_types"`
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from a directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: error when defaulting requires a hostname lookup and it fails.
func (c *Config) applyDefaults() error {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultConsoleFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, defaultFileFormat)

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	if strings.TrimSpace(c.Global.Origin) == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve hostname for global.origin: %w", err)
		}
		c.Global.Origin = host
	}

	c.Collector.Channel = strings.TrimSpace(c.Collector.Channel)
	if c.Collector.Channel == "" {
		c.Collector.Channel = defaultChannel
	}
	c.Collector.Transport = lowerOrDefault(c.Collector.Transport, defaultTransport)
	if c.Collector.Timeout.Duration <= 0 {
		c.Collector.Timeout.Duration = defaultSendTimeout
	}
	if c.Collector.ReconnectInterval.Duration <= 0 {
		c.Collector.ReconnectInterval.Duration = defaultReconnectInterval
	}
	if c.Collector.QueueSize == 0 {
		c.Collector.QueueSize = defaultQueueSize
	}
	if c.Collector.Dispatchers == 0 {
		c.Collector.Dispatchers = defaultDispatchers
	}
	if c.Collector.PollTimeout.Duration <= 0 {
		c.Collector.PollTimeout.Duration = defaultPollTimeout
	}
	if c.Collector.DrainTimeout.Duration <= 0 {
		c.Collector.DrainTimeout.Duration = defaultDrainTimeout
	}
	if c.Collector.DisconnectTimeout.Duration <= 0 {
		c.Collector.DisconnectTimeout.Duration = defaultDisconnectTimeout
	}

	if c.Metrics.System.Sample.Duration <= 0 {
		c.Metrics.System.Sample.Duration = defaultSystemSample
	}

	if c.Stats.Enabled && strings.TrimSpace(c.Stats.Listen) == "" {
		c.Stats.Listen = defaultStatsListen
	}
	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Listen) == "" {
		c.Pprof.Listen = defaultPprofListen
	}

	return nil
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Global.Origin) == "" {
		return fmt.Errorf("global.origin resolved to an empty value")
	}
	for tag := range c.Global.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("global.tags contains an empty key")
		}
	}

	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validateListen("pprof", c.Pprof.Enabled, c.Pprof.Listen); err != nil {
		return err
	}
	if err := validateListen("stats", c.Stats.Enabled, c.Stats.Listen); err != nil {
		return err
	}

	if err := validateCollector("collector", c.Collector); err != nil {
		return err
	}

	return validateSystemSource("metrics.system", c.Metrics.System)
}

// validateCollector validates collector endpoint and delivery settings.
// Params: path config path prefix; cfg collector section.
// Returns: validation error for invalid collector settings.
func validateCollector(path string, cfg CollectorConfig) error {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return fmt.Errorf("%s.endpoint is required", path)
	}

	switch cfg.Transport {
	case "websocket":
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("%s.endpoint is not a valid URL: %w", path, err)
		}
		if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
			return fmt.Errorf("%s.endpoint scheme must be ws or wss for the websocket transport", path)
		}
		if parsed.Host == "" {
			return fmt.Errorf("%s.endpoint must contain a host", path)
		}
	case "grpc":
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			return fmt.Errorf("%s.endpoint must be host:port for the grpc transport: %w", path, err)
		}
	default:
		return fmt.Errorf("%s.transport must be one of: websocket, grpc", path)
	}

	if !strings.HasPrefix(cfg.Channel, "/") {
		return fmt.Errorf("%s.channel must start with /", path)
	}
	if cfg.Timeout.Duration <= 0 {
		return fmt.Errorf("%s.timeout must be > 0", path)
	}
	if cfg.ReconnectInterval.Duration <= 0 {
		return fmt.Errorf("%s.reconnect_interval must be > 0", path)
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("%s.queue_size must be > 0", path)
	}
	if cfg.Dispatchers <= 0 {
		return fmt.Errorf("%s.dispatchers must be > 0", path)
	}
	if cfg.PollTimeout.Duration <= 0 {
		return fmt.Errorf("%s.poll_timeout must be > 0", path)
	}
	if cfg.DrainTimeout.Duration <= 0 {
		return fmt.Errorf("%s.drain_timeout must be > 0", path)
	}
	if cfg.DisconnectTimeout.Duration <= 0 {
		return fmt.Errorf("%s.disconnect_timeout must be > 0", path)
	}

	return nil
}

// validateSystemSource validates built-in system sampler settings.
// Params: path config path prefix; cfg system source section.
// Returns: validation error for invalid sampler settings.
func validateSystemSource(path string, cfg SystemSourceConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Sample.Duration <= 0 {
		return fmt.Errorf("%s.sample must be > 0", path)
	}
	for idx, mask := range cfg.FilterTypes {
		if strings.TrimSpace(mask) == "" {
			return fmt.Errorf("%s.filter_types[%d] cannot be empty", path, idx)
		}
	}
	for idx, mask := range cfg.DropTypes {
		if strings.TrimSpace(mask) == "" {
			return fmt.Errorf("%s.drop_types[%d] cannot be empty", path, idx)
		}
	}
	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// validateListen validates an optional HTTP endpoint listen address.
// Params: path config path prefix; enabled flag; listen address.
// Returns: validation error for invalid listen endpoint.
func validateListen(path string, enabled bool, listen string) error {
	if !enabled {
		return nil
	}
	if strings.TrimSpace(listen) == "" {
		return fmt.Errorf("%s.listen cannot be empty when enabled", path)
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return fmt.Errorf("%s.listen must be host:port: %w", path, err)
	}
	return nil
}

// lowerOrDefault returns a trimmed lower-case value or fallback when empty.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}
