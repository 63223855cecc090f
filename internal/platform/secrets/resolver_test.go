package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeAccessClient() *fakeAccessClient {
	return &fakeAccessClient{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeAccessClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errs[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeAccessClient) Close() error { return nil }

func TestResolveSecretCachesRemoteValue(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	resource := "projects/carts/secrets/postgres_dsn/versions/latest"
	client.values[resource] = "postgres://remote"

	resolver, err := NewResolver(ctx, withClient(client), WithProject("carts"), WithFallbackFile(""))
	if err != nil {
		t.Fatalf("NewResolver returned error: %v", err)
	}
	defer resolver.Close()

	for i := 0; i < 2; i++ {
		got, err := resolver.ResolveSecret(ctx, "secret://postgres_dsn")
		if err != nil {
			t.Fatalf("ResolveSecret returned error: %v", err)
		}
		if got != "postgres://remote" {
			t.Fatalf("expected remote value, got %q", got)
		}
	}
	if calls := client.calls[resource]; calls != 1 {
		t.Fatalf("expected one remote call, got %d", calls)
	}
}

func TestResolveSecretHonoursVersionAndProjectOverride(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	client.values["projects/other/secrets/postgres_dsn/versions/3"] = "pinned"

	resolver, _ := NewResolver(ctx, withClient(client), WithProject("carts"), WithFallbackFile(""))
	got, err := resolver.ResolveSecret(ctx, "sm://postgres_dsn?version=3&project=other")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "pinned" {
		t.Fatalf("expected pinned value, got %q", got)
	}
}

func TestResolveSecretFallsBackWhenRemoteUnavailable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nsecret://postgres_dsn=postgres://local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	client := newFakeAccessClient()
	client.errs["projects/carts/secrets/postgres_dsn/versions/latest"] = status.Error(codes.Unavailable, "down")

	resolver, _ := NewResolver(ctx, withClient(client), WithProject("carts"), WithFallbackFile(path))
	got, err := resolver.ResolveSecret(ctx, "secret://postgres_dsn")
	if err != nil {
		t.Fatalf("ResolveSecret returned error: %v", err)
	}
	if got != "postgres://local" {
		t.Fatalf("expected fallback value, got %q", got)
	}
}

func TestResolveSecretSurfacesHardRemoteErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessClient()
	resolver, _ := NewResolver(ctx, withClient(client), WithProject("carts"), WithFallbackFile(""))

	if _, err := resolver.ResolveSecret(ctx, "secret://missing"); status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := resolver.ResolveSecret(ctx, "https://nope"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
}

func TestIsReference(t *testing.T) {
	for value, want := range map[string]bool{
		"secret://dsn":       true,
		" sm://dsn":          true,
		"postgres://host/db": false,
		"":                   false,
	} {
		if got := IsReference(value); got != want {
			t.Fatalf("IsReference(%q) = %v, want %v", value, got, want)
		}
	}
}
