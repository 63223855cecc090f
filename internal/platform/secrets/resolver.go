package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/hanko-field/carts/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (accessClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver turns secret:// references found in configuration (for example a Postgres DSN) into
// their values. Lookups hit Secret Manager first and fall back to a local key=value file when the
// remote is unreachable or no project is configured.
type Resolver struct {
	client     accessClient
	ownsClient bool
	projectID  string
	logger     *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.Mutex
	cache map[string]string

	latency        metric.Float64Histogram
	latencyEnabled bool
}

type resolverConfig struct {
	projectID    string
	fallbackPath string
	logger       *zap.Logger
	meter        metric.Meter
	client       accessClient
	clientOpts   []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the project used when a reference carries no ?project= override.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file.
func WithFallbackFile(path string) Option {
	return func(cfg *resolverConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

func WithMeter(m metric.Meter) Option {
	return func(cfg *resolverConfig) { cfg.meter = m }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

func withClient(client accessClient) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

// NewResolver builds a Resolver. A Secret Manager client that cannot be created leaves the
// resolver in fallback-only mode rather than failing startup.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{fallbackPath: defaultFallbackPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := meter.Float64Histogram(
		"secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret resolution"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	}

	r := &Resolver{
		projectID:      cfg.projectID,
		logger:         cfg.logger,
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]string),
		latency:        latency,
		latencyEnabled: err == nil,
	}
	switch {
	case cfg.client != nil:
		r.client = cfg.client
	case cfg.projectID != "":
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; using fallback file", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret returns the value behind ref. Values are cached for the life of the resolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	cached, ok := r.cache[parsed.key()]
	r.mu.Unlock()
	if ok {
		r.record(ctx, start, "cache")
		return cached, nil
	}

	project := parsed.project
	if project == "" {
		project = r.projectID
	}
	if project != "" && r.client != nil {
		value, err := r.fetch(ctx, project, parsed)
		if err == nil {
			r.store(parsed, value)
			r.record(ctx, start, "remote")
			return value, nil
		}
		if !isFallbackError(err) {
			r.record(ctx, start, "error")
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("ref", parsed.canonical), zap.Error(err))
	}

	value, ok := r.lookupFallback(parsed)
	if !ok {
		r.record(ctx, start, "error")
		if r.fallbackErr != nil {
			return "", r.fallbackErr
		}
		return "", fmt.Errorf("secrets: no value for %s", parsed.canonical)
	}
	r.store(parsed, value)
	r.record(ctx, start, "fallback")
	return value, nil
}

func (r *Resolver) fetch(ctx context.Context, project string, ref reference) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.secret, ref.version)
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) store(ref reference, value string) {
	r.mu.Lock()
	r.cache[ref.key()] = value
	r.mu.Unlock()
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	r.fallbackOnce.Do(func() {
		r.fallback, r.fallbackErr = readFallbackFile(r.fallbackPath)
	})
	if value, ok := r.fallback[ref.key()]; ok {
		return value, true
	}
	value, ok := r.fallback[ref.canonical]
	return value, ok
}

func (r *Resolver) record(ctx context.Context, start time.Time, source string) {
	if !r.latencyEnabled {
		return
	}
	r.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("source", source)))
}

// readFallbackFile parses lines of the form secret://name[?version=N]=value. A missing file is empty.
func readFallbackFile(path string) (map[string]string, error) {
	values := make(map[string]string)
	if path == "" {
		return values, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return values, fmt.Errorf("secrets: open fallback file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// The reference itself may contain '=' inside its query string.
		idx := strings.LastIndex(line, "=")
		if idx <= 0 {
			continue
		}
		ref, err := parseReference(strings.TrimSpace(line[:idx]))
		if err != nil {
			continue
		}
		value := strings.TrimSpace(line[idx+1:])
		values[ref.key()] = value
		if ref.version == "latest" {
			values[ref.canonical] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return values, fmt.Errorf("secrets: read fallback file %s: %w", path, err)
	}
	return values, nil
}

type reference struct {
	canonical string
	secret    string
	version   string
	project   string
}

func (r reference) key() string { return r.canonical + "#" + r.version }

// IsReference reports whether value should be resolved rather than used literally.
func IsReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "sm://") {
		raw = "secret://" + strings.TrimPrefix(raw, "sm://")
	}
	if raw == "" {
		return reference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", raw)
	}
	query := u.Query()
	version := strings.TrimSpace(query.Get("version"))
	if version == "" {
		version = "latest"
	}
	return reference{
		canonical: "secret://" + name,
		secret:    name,
		version:   version,
		project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
