package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hanko-field/carts/internal/platform/config"
)

func TestProviderClientAfterClose(t *testing.T) {
	provider := NewProvider(config.FirestoreConfig{ProjectID: "carts-test"})
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestProviderEmulatorHostPrefersConfig(t *testing.T) {
	t.Setenv(envEmulatorHost, "env-host:8080")

	provider := NewProvider(config.FirestoreConfig{EmulatorHost: " cfg-host:9090 "}, WithDialTimeout(time.Second))
	if host := provider.emulatorHost(); host != "cfg-host:9090" {
		t.Fatalf("expected configured host, got %q", host)
	}
	if provider.dialTimeout != time.Second {
		t.Fatalf("expected dial timeout override, got %s", provider.dialTimeout)
	}

	fromEnv := NewProvider(config.FirestoreConfig{})
	if host := fromEnv.emulatorHost(); host != "env-host:8080" {
		t.Fatalf("expected env host, got %q", host)
	}
}
