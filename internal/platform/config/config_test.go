package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Service.Environment != "local" || cfg.Service.LogLevel != "info" {
		t.Errorf("unexpected service defaults: %+v", cfg.Service)
	}
	if cfg.Pricing.DefaultCurrency != "USD" {
		t.Errorf("expected default currency USD, got %s", cfg.Pricing.DefaultCurrency)
	}
	if cfg.Cleanup.Interval != time.Hour {
		t.Errorf("unexpected cleanup interval: %s", cfg.Cleanup.Interval)
	}
	if cfg.Cleanup.ExpiredOlderThanDays != nil || cfg.Cleanup.MaxArchivedPerScope != nil {
		t.Errorf("expected cleanup rules unset, got %+v", cfg.Cleanup)
	}
	if cfg.PubSub.AnalyticsTopic != "cart-analytics" || cfg.PubSub.EventsTopic != "" {
		t.Errorf("unexpected pubsub defaults: %+v", cfg.PubSub)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"CARTS_SERVICE_ENVIRONMENT":      "PROD",
		"CARTS_STORAGE_BACKEND":          "postgres",
		"CARTS_FIRESTORE_PROJECT_ID":     "carts-prod",
		"CARTS_POSTGRES_DSN":             "sm://postgres_dsn",
		"CARTS_POSTGRES_MIGRATE":         "yes",
		"CARTS_PUBSUB_EVENTS_TOPIC":      "cart-events",
		"CARTS_EXPORTS_BUCKET":           "carts-exports",
		"CARTS_DEFAULT_CURRENCY":         "jpy",
		"CARTS_CLEANUP_INTERVAL":         "15m",
		"CARTS_CLEANUP_EXPIRED_DAYS":     "30",
		"CARTS_CLEANUP_CHECKED_OUT_DAYS": "0",
		"CARTS_CLEANUP_MAX_ARCHIVED":     "20",
	}
	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		return " postgres://carts@db/carts ", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !slices.Equal(requested, []string{"secret://postgres_dsn"}) {
		t.Errorf("unexpected secret refs: %v", requested)
	}
	if cfg.Postgres.DSN != "postgres://carts@db/carts" || !cfg.Postgres.Migrate {
		t.Errorf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if cfg.Service.Environment != "prod" {
		t.Errorf("expected lowercased environment, got %s", cfg.Service.Environment)
	}
	if cfg.PubSub.ProjectID != "carts-prod" || cfg.Secrets.ProjectID != "carts-prod" {
		t.Errorf("expected project fallbacks, got pubsub=%s secrets=%s", cfg.PubSub.ProjectID, cfg.Secrets.ProjectID)
	}
	if cfg.Pricing.DefaultCurrency != "JPY" {
		t.Errorf("expected upper-cased currency, got %s", cfg.Pricing.DefaultCurrency)
	}
	if cfg.Cleanup.Interval != 15*time.Minute {
		t.Errorf("unexpected interval %s", cfg.Cleanup.Interval)
	}
	if cfg.Cleanup.ExpiredOlderThanDays == nil || *cfg.Cleanup.ExpiredOlderThanDays != 30 {
		t.Errorf("unexpected expired days %v", cfg.Cleanup.ExpiredOlderThanDays)
	}
	if cfg.Cleanup.CheckedOutOlderThanDays == nil || *cfg.Cleanup.CheckedOutOlderThanDays != 0 {
		t.Errorf("expected explicit zero checked-out days, got %v", cfg.Cleanup.CheckedOutOlderThanDays)
	}
	if cfg.Cleanup.CancelledOlderThanDays != nil {
		t.Errorf("expected cancelled rule unset, got %v", *cfg.Cleanup.CancelledOlderThanDays)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "export CARTS_LOG_LEVEL=debug\nCARTS_EXPORTS_BUCKET=\"from-file\"\n# comment\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CARTS_EXPORTS_BUCKET", "from-env")

	cfg, err := Load(context.Background(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected dotenv log level, got %s", cfg.Service.LogLevel)
	}
	if cfg.Exports.Bucket != "from-env" {
		t.Errorf("expected system env to override dotenv, got %s", cfg.Exports.Bucket)
	}

	cfg, err = Load(context.Background(), WithEnvFile(envFile), WithEnvMap(map[string]string{"CARTS_EXPORTS_BUCKET": "from-map"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Exports.Bucket != "from-map" {
		t.Errorf("expected env map to win, got %s", cfg.Exports.Bucket)
	}

	values, err := EnvironmentValues(WithEnvFile(envFile), WithEnvMap(map[string]string{"CARTS_LOG_LEVEL": "warn"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["CARTS_LOG_LEVEL"] != "warn" || values["CARTS_EXPORTS_BUCKET"] != "from-env" {
		t.Errorf("unexpected merged values: %v", values)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"CARTS_STORAGE_BACKEND":      "firestore",
		"CARTS_DEFAULT_CURRENCY":     "ZZ",
		"CARTS_CLEANUP_INTERVAL":     "-1s",
		"CARTS_CLEANUP_EXPIRED_DAYS": "-3",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []string{"Cleanup.ExpiredOlderThanDays", "Cleanup.Interval", "Firestore.ProjectID", "Pricing.DefaultCurrency"}
	if !slices.Equal(vErr.Fields(), want) {
		t.Fatalf("unexpected fields %v, want %v", vErr.Fields(), want)
	}

	_, err = Load(context.Background(), WithEnvMap(map[string]string{"CARTS_STORAGE_BACKEND": "redis"}), WithoutSystemEnv(), WithEnvFile(""))
	if !errors.As(err, &vErr) || !slices.Equal(vErr.Fields(), []string{"Storage.Backend"}) {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"CARTS_STORAGE_BACKEND": "postgres",
		"CARTS_POSTGRES_DSN":    "secret://postgres_dsn",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var sErr *SecretError
	if !errors.As(err, &sErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}
