package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-compare/domains/vendor"
	pkgError "github.com/AzielCF/az-compare/pkg/error"
	"github.com/AzielCF/az-compare/pkg/metrics"
	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const maxErrorBody = 256

// HTTPConfig configures the upstream data API client.
type HTTPConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     uint
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// HTTPProvider reads vendor data from the upstream JSON API. Every call has
// its own deadline; timeouts and connection failures are retried with
// exponential backoff, everything else surfaces at once.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *fasthttp.Client
}

type HTTPOption func(*HTTPProvider)

// WithFastHTTPClient swaps the transport, e.g. for an in-memory listener.
func WithFastHTTPClient(c *fasthttp.Client) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.client = c
		}
	}
}

func NewHTTPProvider(cfg HTTPConfig, opts ...HTTPOption) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 300 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 3 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	p := &HTTPProvider{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                      "az-compare",
			MaxConnsPerHost:           64,
			MaxIdleConnDuration:       30 * time.Second,
			MaxIdemponentCallAttempts: 1,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type envelope[T any] struct {
	Success *bool  `json:"success"`
	Data    *T     `json:"data"`
	Error   string `json:"error"`
}

func (p *HTTPProvider) FetchVendorMapping(ctx context.Context, platform vendor.Platform, code string) (vendor.Mapping, error) {
	path := fmt.Sprintf("/vendors/%s/%s", platform, url.PathEscape(code))
	m, err := fetch[vendor.Mapping](ctx, p, "vendor_mapping", path)
	if err != nil {
		return vendor.Mapping{}, notFoundAsAbsent(err, fmt.Sprintf("no mapping for %s vendor %s", platform, code))
	}
	if m.SfCode == "" && m.TfCode == "" {
		return vendor.Mapping{}, pkgError.MalformedResponse("vendor mapping without codes")
	}
	if m.Code(platform.Counterpart()) == "" {
		return m, pkgError.MappingAbsent(fmt.Sprintf("%s vendor %s has no counterpart", platform, code))
	}
	return m, nil
}

func (p *HTTPProvider) FetchVendorList(ctx context.Context) ([]vendor.Mapping, error) {
	return fetch[[]vendor.Mapping](ctx, p, "vendor_list", "/vendors")
}

func (p *HTTPProvider) FetchStats(ctx context.Context) (vendor.Stats, error) {
	return fetch[vendor.Stats](ctx, p, "stats", "/stats")
}

func (p *HTTPProvider) FetchPlatformProducts(ctx context.Context, platform vendor.Platform, code string) ([]vendor.Product, error) {
	path := fmt.Sprintf("/products/%s/%s", platform, url.PathEscape(code))
	products, err := fetch[[]vendor.Product](ctx, p, "platform_products", path)
	if err != nil {
		return nil, notFoundAsAbsent(err, fmt.Sprintf("no products for %s vendor %s", platform, code))
	}
	return products, nil
}

func (p *HTTPProvider) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.BackoffInitial
	b.MaxInterval = p.cfg.BackoffMax
	return b
}

func fetch[T any](ctx context.Context, p *HTTPProvider, op, path string) (T, error) {
	started := time.Now()

	result, err := backoff.Retry(ctx, func() (T, error) {
		v, err := get[T](ctx, p, path)
		if err != nil && !pkgError.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(p.cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			logrus.Warnf("[PROVIDER] %s %s failed: %v (retrying in %s)", op, path, err, next)
		}),
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = pkgError.TimeoutFailure(fmt.Sprintf("%s: deadline exceeded", op))
		}
		metrics.ObserveProvider(op, outcome(err), started)
		return result, err
	}
	metrics.ObserveProvider(op, "ok", started)
	return result, nil
}

func get[T any](ctx context.Context, p *HTTPProvider, path string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.cfg.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", p.cfg.APIKey)
	}

	deadline := time.Now().Add(p.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := p.client.DoDeadline(req, resp, deadline); err != nil {
		return zero, classify(path, err)
	}

	status := resp.StatusCode()
	body := resp.Body()
	if status < 200 || status > 299 {
		return zero, pkgError.UpstreamFailure{Status: status, Body: truncate(body)}
	}

	var env envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return zero, pkgError.MalformedResponse(fmt.Sprintf("decode %s: %v", path, err))
	}
	if env.Success != nil && !*env.Success {
		return zero, pkgError.UpstreamFailure{Status: status, Body: env.Error}
	}
	if env.Data == nil {
		return zero, pkgError.MalformedResponse(fmt.Sprintf("decode %s: missing data", path))
	}
	return *env.Data, nil
}

func classify(path string, err error) error {
	if errors.Is(err, fasthttp.ErrTimeout) || errors.Is(err, fasthttp.ErrDialTimeout) {
		return pkgError.TimeoutFailure(fmt.Sprintf("GET %s: %v", path, err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return pkgError.TimeoutFailure(fmt.Sprintf("GET %s: %v", path, err))
	}
	return pkgError.ConnectionFailure(fmt.Sprintf("GET %s: %v", path, err))
}

func notFoundAsAbsent(err error, msg string) error {
	var upstream pkgError.UpstreamFailure
	if errors.As(err, &upstream) && upstream.Status == fasthttp.StatusNotFound {
		return pkgError.MappingAbsent(msg)
	}
	return err
}

func outcome(err error) string {
	var (
		timeout   pkgError.TimeoutFailure
		conn      pkgError.ConnectionFailure
		upstream  pkgError.UpstreamFailure
		malformed pkgError.MalformedResponse
	)
	switch {
	case errors.As(err, &timeout):
		return "timeout"
	case errors.As(err, &conn):
		return "connection"
	case errors.As(err, &upstream):
		return "upstream"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
