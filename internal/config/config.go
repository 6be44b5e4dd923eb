package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	defaultListen        = ":8000"
	defaultWebhookPath   = "/"
	defaultHealthPath    = "/healthz"
	defaultReadyPath     = "/readyz"
	defaultMetricsPath   = "/metrics"
	defaultMaxBodyBytes  = 4 << 20
	defaultSweepEvery    = 5000
	defaultGeocodeRPS    = 5
	defaultNATSURL       = "nats://127.0.0.1:4222"
	defaultNATSSubject   = "notifier.webhook"
	defaultNATSStream    = "NOTIFIER_WEBHOOK"
	defaultNATSDurable   = "notifier-ingest"
	defaultNATSQueue     = "notifier-workers"
	defaultNATSAckWait   = 30
	defaultNATSNackDelay = 1000
	defaultNATSMaxDeliv  = -1
	defaultNATSMaxAck    = 2048
	defaultRetryAttempts = 5
	defaultRetryDelayMS  = 500
	defaultTimeoutMS     = 10000

	// EndpointSimple is the built-in log endpoint name and type.
	EndpointSimple = "simple"
	// EndpointLog is an alias type of EndpointSimple.
	EndpointLog = "log"
	// EndpointDiscord posts to a chat webhook.
	EndpointDiscord = "discord"
	// EndpointPushbullet posts notes to the Pushbullet API.
	EndpointPushbullet = "pushbullet"
	// EndpointTelegram sends through a Telegram bot.
	EndpointTelegram = "telegram"
	// EndpointFirebase sends FCM push messages.
	EndpointFirebase = "firebase"

	envPrefix = "notifier"
)

// Config is the resolved, immutable runtime configuration.
// Params: one rule document (file or merged directory).
// Returns: rule-sets, targets and reverse indexes ready for the engine.
type Config struct {
	Service   ServiceConfig
	Options   Options
	Endpoints map[string]Endpoint
	Trainers  []string
	Geofences map[string]*Geofence

	// RuleSets and RaidSets keep only rule-sets referenced by an enabled target.
	RuleSets map[string]RuleSet
	RaidSets map[string]RuleSet
	Targets  map[string]Target

	CreatureIndex map[string][]string
	RaidIndex     map[string][]string

	// Warnings are accepted-but-ignored settings, logged at startup.
	Warnings []string
}

// ServiceConfig contains process-level settings.
type ServiceConfig struct {
	Listen       string           `json:"listen" toml:"listen"`
	WebhookPath  string           `json:"webhook_path" toml:"webhook_path"`
	HealthPath   string           `json:"health_path" toml:"health_path"`
	ReadyPath    string           `json:"ready_path" toml:"ready_path"`
	MetricsPath  string           `json:"metrics_path" toml:"metrics_path"`
	MaxBodyBytes int64            `json:"max_body_bytes" toml:"max_body_bytes"`
	SweepEvery   int              `json:"sweep_every" toml:"sweep_every"`
	Log          LogConfig        `json:"log" toml:"log"`
	NATS         NATSIngestConfig `json:"nats" toml:"nats"`
}

// NATSIngestConfig configures JetStream queue-consumer ingestion.
// Params: connection, routing and ack/redelivery policy.
// Returns: NATS ingest behavior.
type NATSIngestConfig struct {
	Enabled       bool     `json:"enabled" toml:"enabled"`
	URL           []string `json:"url" toml:"url"`
	Subject       string   `json:"subject" toml:"subject"`
	Stream        string   `json:"stream" toml:"stream"`
	Durable       string   `json:"durable" toml:"durable"`
	Queue         string   `json:"queue" toml:"queue"`
	AckWaitSec    int      `json:"ack_wait_sec" toml:"ack_wait_sec"`
	NackDelayMS   int      `json:"nack_delay_ms" toml:"nack_delay_ms"`
	MaxDeliver    int      `json:"max_deliver" toml:"max_deliver"`
	MaxAckPending int      `json:"max_ack_pending" toml:"max_ack_pending"`
}

// LogConfig defines console and file sinks.
type LogConfig struct {
	Console LogSinkConfig `json:"console" toml:"console"`
	File    LogSinkConfig `json:"file" toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `json:"enabled" toml:"enabled"`
	Level   string `json:"level" toml:"level"`
	Format  string `json:"format" toml:"format"`
	Path    string `json:"path" toml:"path"`
}

// Location is an anchor point for distance filters.
type Location struct {
	Lat float64 `json:"lat" toml:"lat"`
	Lon float64 `json:"lon" toml:"lon"`
}

// Options holds the `config` section of the rule document.
type Options struct {
	GoogleKey        string    `json:"google_key" toml:"google_key"`
	FetchSublocality bool      `json:"fetch_sublocality" toml:"fetch_sublocality"`
	ShortenURLs      bool      `json:"shorten_urls" toml:"shorten_urls"`
	Location         *Location `json:"location" toml:"location"`
	GeofenceFile     string    `json:"geofence_file" toml:"geofence_file"`
	GeocodeRPS       float64   `json:"geocode_rps" toml:"geocode_rps"`
	DataDir          string    `json:"data_dir" toml:"data_dir"`
}

// RetryConfig is the fixed-delay delivery retry policy of one endpoint.
type RetryConfig struct {
	Attempts int `json:"attempts" toml:"attempts" validate:"gte=0,lte=20"`
	DelayMS  int `json:"delay_ms" toml:"delay_ms" validate:"gte=0"`
}

// Endpoint is one named channel config with a type discriminator.
// Params: type-specific fields; unused fields stay empty.
// Returns: handler input resolved once at load.
type Endpoint struct {
	Name            string            `json:"-" toml:"-"`
	Type            string            `json:"type" toml:"type" validate:"required,oneof=simple log discord pushbullet telegram firebase"`
	URL             string            `json:"url" toml:"url" validate:"required_if=Type discord"`
	Username        string            `json:"username" toml:"username"`
	AvatarURL       string            `json:"avatar_url" toml:"avatar_url"`
	APIKey          string            `json:"api_key" toml:"api_key" validate:"required_if=Type pushbullet"`
	BotToken        string            `json:"bot_token" toml:"bot_token" validate:"required_if=Type telegram"`
	ChatID          string            `json:"chat_id" toml:"chat_id" validate:"required_if=Type telegram"`
	APIBaseURL      string            `json:"api_base_url" toml:"api_base_url"`
	CredentialsFile string            `json:"credentials_file" toml:"credentials_file" validate:"required_if=Type firebase"`
	DeviceToken     string            `json:"device_token" toml:"device_token"`
	Topic           string            `json:"topic" toml:"topic"`
	Templates       map[string]string `json:"templates" toml:"templates"`
	TimeoutMS       int               `json:"timeout_ms" toml:"timeout_ms" validate:"gte=0"`
	Retry           RetryConfig       `json:"retry" toml:"retry"`
}

// Target is one enabled notification subscriber.
type Target struct {
	Name      string
	Includes  []string
	Raids     []string
	Endpoints []string
	Gym       bool
}

// ConfigurationError marks fatal rule document problems.
type ConfigurationError struct {
	Reason string
	Err    error
}

// Error returns reason with optional wrapped cause.
func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return "configuration error: " + e.Reason + ": " + e.Err.Error()
}

// Unwrap exposes wrapped cause for errors.Is/errors.As.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err carries ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// ConfigSource describes file or directory config source.
// Params: exactly one of file path or directory path.
// Returns: normalized source descriptor.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI builds normalized source configuration from input paths.
// Params: optional file and directory arguments.
// Returns: source descriptor or validation error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}
	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// baseDir returns directory used to resolve relative paths of the source.
func (s ConfigSource) baseDir() string {
	if s.Dir != "" {
		return s.Dir
	}
	return filepath.Dir(s.File)
}

// LoadSnapshot loads, resolves and validates configuration from one source.
// Params: source selects file or directory mode.
// Returns: resolved config or load/ConfigurationError.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var doc document
	var err error
	if src.File != "" {
		doc, err = loadFile(src.File)
	} else {
		doc, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	return build(doc, src.baseDir())
}

// Parse resolves one in-memory rule document.
// Params: document body and format (`toml`, `json` or `jsonc`).
// Returns: resolved config or decode/ConfigurationError.
func Parse(body []byte, format string) (Config, error) {
	doc, err := decodeDocument(body, format)
	if err != nil {
		return Config{}, err
	}
	return build(doc, ".")
}

func build(doc document, baseDir string) (Config, error) {
	cfg := Config{
		Service:   doc.Service,
		Options:   doc.Config,
		Endpoints: make(map[string]Endpoint, len(doc.Endpoints)+1),
		Trainers:  append([]string(nil), doc.Trainers...),
	}
	for name, endpoint := range doc.Endpoints {
		endpoint.Name = name
		if endpoint.CredentialsFile != "" && !filepath.IsAbs(endpoint.CredentialsFile) {
			endpoint.CredentialsFile = filepath.Join(baseDir, endpoint.CredentialsFile)
		}
		cfg.Endpoints[name] = endpoint
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	fences := map[string]*Geofence{}
	if path := strings.TrimSpace(cfg.Options.GeofenceFile); path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		loaded, err := LoadGeofences(path)
		if err != nil {
			return Config{}, &ConfigurationError{Reason: "load geofences", Err: err}
		}
		fences = loaded
	}
	cfg.Geofences = fences

	if err := resolve(&cfg, doc); err != nil {
		return Config{}, err
	}
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if cfg.Options.ShortenURLs {
		cfg.Warnings = append(cfg.Warnings, "config.shorten_urls is not supported; links are sent unshortened")
	}
	if cfg.Options.FetchSublocality && strings.TrimSpace(cfg.Options.GoogleKey) == "" {
		cfg.Warnings = append(cfg.Warnings, "config.fetch_sublocality requires config.google_key; sublocality disabled")
	}
	return cfg, nil
}

// envOverrides lists settings read from NOTIFIER_* (or unprefixed) variables.
type envOverrides struct {
	GoogleKey        string   `envconfig:"GOOGLE_KEY"`
	Listen           string   `envconfig:"LISTEN"`
	LogLevel         string   `envconfig:"LOG_LEVEL"`
	NATSURL          []string `envconfig:"NATS_URL"`
	PushbulletAPIKey string   `envconfig:"PUSHBULLET_API_KEY"`
	TelegramBotToken string   `envconfig:"TELEGRAM_BOT_TOKEN"`
	DiscordURL       string   `envconfig:"DISCORD_WEBHOOK_URL"`
}

// applyEnv overlays environment values onto document values.
// Params: config being built.
// Returns: envconfig parse error.
func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("read environment overrides: %w", err)
	}
	if env.GoogleKey != "" {
		cfg.Options.GoogleKey = env.GoogleKey
	}
	if env.Listen != "" {
		cfg.Service.Listen = env.Listen
	}
	if env.LogLevel != "" {
		cfg.Service.Log.Console.Level = env.LogLevel
	}
	if len(env.NATSURL) > 0 {
		cfg.Service.NATS.URL = env.NATSURL
	}
	for name, endpoint := range cfg.Endpoints {
		switch normalizeEndpointType(endpoint.Type) {
		case EndpointPushbullet:
			if endpoint.APIKey == "" {
				endpoint.APIKey = env.PushbulletAPIKey
			}
		case EndpointTelegram:
			if endpoint.BotToken == "" {
				endpoint.BotToken = env.TelegramBotToken
			}
		case EndpointDiscord:
			if endpoint.URL == "" {
				endpoint.URL = env.DiscordURL
			}
		}
		cfg.Endpoints[name] = endpoint
	}
	return nil
}

func applyDefaults(cfg *Config) {
	svc := &cfg.Service
	if strings.TrimSpace(svc.Listen) == "" {
		svc.Listen = defaultListen
	}
	if strings.TrimSpace(svc.WebhookPath) == "" {
		svc.WebhookPath = defaultWebhookPath
	}
	if strings.TrimSpace(svc.HealthPath) == "" {
		svc.HealthPath = defaultHealthPath
	}
	if strings.TrimSpace(svc.ReadyPath) == "" {
		svc.ReadyPath = defaultReadyPath
	}
	if strings.TrimSpace(svc.MetricsPath) == "" {
		svc.MetricsPath = defaultMetricsPath
	}
	if svc.MaxBodyBytes <= 0 {
		svc.MaxBodyBytes = defaultMaxBodyBytes
	}
	if svc.SweepEvery <= 0 {
		svc.SweepEvery = defaultSweepEvery
	}

	if svc.Log.Console.Level == "" {
		svc.Log.Console.Level = "info"
	}
	if svc.Log.Console.Format == "" {
		svc.Log.Console.Format = "line"
	}
	if svc.Log.File.Level == "" {
		svc.Log.File.Level = "info"
	}
	if svc.Log.File.Format == "" {
		svc.Log.File.Format = "json"
	}
	if !svc.Log.Console.Enabled && !svc.Log.File.Enabled {
		svc.Log.Console.Enabled = true
	}

	nats := &svc.NATS
	nats.URL = normalizeNATSURLs(nats.URL)
	if len(nats.URL) == 0 {
		nats.URL = []string{defaultNATSURL}
	}
	if nats.Subject == "" {
		nats.Subject = defaultNATSSubject
	}
	if nats.Stream == "" {
		nats.Stream = defaultNATSStream
	}
	if nats.Durable == "" {
		nats.Durable = defaultNATSDurable
	}
	if nats.Queue == "" {
		nats.Queue = defaultNATSQueue
	}
	if nats.AckWaitSec <= 0 {
		nats.AckWaitSec = defaultNATSAckWait
	}
	if nats.NackDelayMS <= 0 {
		nats.NackDelayMS = defaultNATSNackDelay
	}
	if nats.MaxDeliver == 0 {
		nats.MaxDeliver = defaultNATSMaxDeliv
	}
	if nats.MaxAckPending <= 0 {
		nats.MaxAckPending = defaultNATSMaxAck
	}

	if cfg.Options.GeocodeRPS <= 0 {
		cfg.Options.GeocodeRPS = defaultGeocodeRPS
	}

	for name, endpoint := range cfg.Endpoints {
		endpoint.Type = normalizeEndpointType(endpoint.Type)
		if endpoint.TimeoutMS <= 0 {
			endpoint.TimeoutMS = defaultTimeoutMS
		}
		if endpoint.Retry.Attempts <= 0 {
			endpoint.Retry.Attempts = defaultRetryAttempts
		}
		if endpoint.Retry.DelayMS <= 0 {
			endpoint.Retry.DelayMS = defaultRetryDelayMS
		}
		cfg.Endpoints[name] = endpoint
	}
	if _, ok := cfg.Endpoints[EndpointSimple]; !ok {
		cfg.Endpoints[EndpointSimple] = Endpoint{
			Name:      EndpointSimple,
			Type:      EndpointSimple,
			TimeoutMS: defaultTimeoutMS,
			Retry:     RetryConfig{Attempts: 1, DelayMS: defaultRetryDelayMS},
		}
	}
}

var endpointValidator = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Service.Listen) == "" {
		return configErrorf("service.listen is required")
	}
	for _, path := range []struct{ key, value string }{
		{"service.webhook_path", cfg.Service.WebhookPath},
		{"service.health_path", cfg.Service.HealthPath},
		{"service.ready_path", cfg.Service.ReadyPath},
		{"service.metrics_path", cfg.Service.MetricsPath},
	} {
		if !strings.HasPrefix(path.value, "/") {
			return configErrorf("%s must start with /", path.key)
		}
	}
	if err := validateLogSink("service.log.console", cfg.Service.Log.Console, false); err != nil {
		return err
	}
	if err := validateLogSink("service.log.file", cfg.Service.Log.File, true); err != nil {
		return err
	}
	if loc := cfg.Options.Location; loc != nil {
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
			return configErrorf("config.location is out of range")
		}
	}

	names := make([]string, 0, len(cfg.Endpoints))
	for name := range cfg.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateEndpoint(cfg.Endpoints[name]); err != nil {
			return err
		}
	}
	return nil
}

// validateEndpoint checks struct tags plus type-specific combinations.
// Params: one normalized endpoint.
// Returns: ConfigurationError naming the endpoint.
func validateEndpoint(endpoint Endpoint) error {
	if err := endpointValidator.Struct(endpoint); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return configErrorf("endpoints.%s.%s failed %q check", endpoint.Name, strings.ToLower(first.Field()), first.Tag())
		}
		return &ConfigurationError{Reason: "endpoints." + endpoint.Name, Err: err}
	}
	if endpoint.Type != EndpointFirebase {
		return nil
	}
	if endpoint.DeviceToken == "" && endpoint.Topic == "" {
		return configErrorf("endpoints.%s requires device_token or topic", endpoint.Name)
	}
	if _, err := os.Stat(endpoint.CredentialsFile); err != nil {
		return &ConfigurationError{Reason: "endpoints." + endpoint.Name + ".credentials_file", Err: err}
	}
	return nil
}

// validateLogSink validates one log sink configuration.
// Params: sink name, sink values, and whether path is required.
// Returns: sink validation error.
func validateLogSink(name string, sink LogSinkConfig, requirePath bool) error {
	if !sink.Enabled {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(sink.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return configErrorf("%s.level has unsupported value %q", name, sink.Level)
	}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "line", "json":
	default:
		return configErrorf("%s.format has unsupported value %q", name, sink.Format)
	}

	if requirePath && strings.TrimSpace(sink.Path) == "" {
		return configErrorf("%s.path is required", name)
	}
	return nil
}

func normalizeEndpointType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", EndpointLog:
		return EndpointSimple
	default:
		return value
	}
}

func normalizeNATSURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
