package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

const (
	defaultEnvFile         = ".env"
	defaultEnvironment     = "local"
	defaultLogLevel        = "info"
	defaultBackend         = BackendMemory
	defaultCurrency        = "USD"
	defaultCleanupInterval = time.Hour
	defaultAnalyticsTopic  = "cart-analytics"
)

// Storage backends understood by the container.
const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Service   ServiceConfig
	Storage   StorageConfig
	Firestore FirestoreConfig
	Postgres  PostgresConfig
	PubSub    PubSubConfig
	Exports   ExportsConfig
	Pricing   PricingConfig
	Cleanup   CleanupConfig
	Secrets   SecretsConfig
}

// ServiceConfig holds process-wide settings.
type ServiceConfig struct {
	Environment string
	LogLevel    string
}

// StorageConfig selects the cart repository backend.
type StorageConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PostgresConfig configures the relational backend. DSN may be a secret:// reference.
type PostgresConfig struct {
	DSN     string
	Migrate bool
}

// PubSubConfig names the topics cart notifications are published to. An empty project disables
// publishing; an empty events topic disables the event relay.
type PubSubConfig struct {
	ProjectID      string
	AnalyticsTopic string
	EventsTopic    string
}

// ExportsConfig names the bucket cleanup reports are written to.
type ExportsConfig struct {
	Bucket string
}

// PricingConfig holds pricing defaults.
type PricingConfig struct {
	DefaultCurrency string
}

// CleanupConfig drives the periodic archived-cart sweeper. Nil day counts leave that rule off.
type CleanupConfig struct {
	Interval                time.Duration
	ExpiredOlderThanDays    *int
	CancelledOlderThanDays  *int
	CheckedOutOlderThanDays *int
	MaxArchivedPerScope     *int
}

// SecretsConfig configures secret:// reference resolution.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). cmd/cartd uses it to build the secret resolver
// before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Load assembles the service configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Service: ServiceConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "CARTS_SERVICE_ENVIRONMENT", defaultEnvironment)),
			LogLevel:    strings.ToLower(stringWithDefault(lookup, "CARTS_LOG_LEVEL", defaultLogLevel)),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "CARTS_STORAGE_BACKEND", defaultBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CARTS_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "CARTS_FIRESTORE_EMULATOR_HOST", ""),
		},
		Postgres: PostgresConfig{
			DSN:     stringWithDefault(lookup, "CARTS_POSTGRES_DSN", ""),
			Migrate: boolWithDefault(lookup, "CARTS_POSTGRES_MIGRATE", false),
		},
		PubSub: PubSubConfig{
			ProjectID:      stringWithDefault(lookup, "CARTS_PUBSUB_PROJECT_ID", ""),
			AnalyticsTopic: stringWithDefault(lookup, "CARTS_PUBSUB_ANALYTICS_TOPIC", defaultAnalyticsTopic),
			EventsTopic:    stringWithDefault(lookup, "CARTS_PUBSUB_EVENTS_TOPIC", ""),
		},
		Exports: ExportsConfig{
			Bucket: stringWithDefault(lookup, "CARTS_EXPORTS_BUCKET", ""),
		},
		Pricing: PricingConfig{
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "CARTS_DEFAULT_CURRENCY", defaultCurrency)),
		},
		Cleanup: CleanupConfig{
			Interval:                durationWithDefault(lookup, "CARTS_CLEANUP_INTERVAL", defaultCleanupInterval),
			ExpiredOlderThanDays:    optionalInt(lookup, "CARTS_CLEANUP_EXPIRED_DAYS"),
			CancelledOlderThanDays:  optionalInt(lookup, "CARTS_CLEANUP_CANCELLED_DAYS"),
			CheckedOutOlderThanDays: optionalInt(lookup, "CARTS_CLEANUP_CHECKED_OUT_DAYS"),
			MaxArchivedPerScope:     optionalInt(lookup, "CARTS_CLEANUP_MAX_ARCHIVED"),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "CARTS_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "CARTS_SECRETS_FALLBACK_FILE", ".secrets.local"),
		},
	}

	// Publishing and secrets default to the Firestore project when unspecified.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecret(ctx, cfg.Postgres.DSN, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Postgres.DSN = resolved

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string

	switch cfg.Storage.Backend {
	case BackendMemory:
	case BackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	case BackendPostgres:
		if cfg.Postgres.DSN == "" {
			missing = append(missing, "Postgres.DSN")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}
	if _, err := currency.ParseISO(cfg.Pricing.DefaultCurrency); err != nil {
		missing = append(missing, "Pricing.DefaultCurrency")
	}
	if cfg.Cleanup.Interval <= 0 {
		missing = append(missing, "Cleanup.Interval")
	}
	for name, days := range map[string]*int{
		"Cleanup.ExpiredOlderThanDays":    cfg.Cleanup.ExpiredOlderThanDays,
		"Cleanup.CancelledOlderThanDays":  cfg.Cleanup.CancelledOlderThanDays,
		"Cleanup.CheckedOutOlderThanDays": cfg.Cleanup.CheckedOutOlderThanDays,
		"Cleanup.MaxArchivedPerScope":     cfg.Cleanup.MaxArchivedPerScope,
	} {
		if days != nil && *days < 0 {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

// optionalInt returns nil for unset or unparsable values.
func optionalInt(lookup func(string) (string, bool), key string) *int {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return nil
	}
	return &parsed
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
