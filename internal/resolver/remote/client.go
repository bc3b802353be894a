// Package remote is an inspector backend that talks to another process
// over the JSON protocol in package protocol.
//
// Requests go through a rate limiter and a circuit breaker. Idempotent
// property fetches are retried by a retryablehttp transport; evaluation
// and getter calls run user code and are sent once.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replayio/devtools-sub005/internal/infrastructure/resilience"
	"github.com/replayio/devtools-sub005/internal/infrastructure/tracing"
	"github.com/replayio/devtools-sub005/internal/inspector/bucket"
	"github.com/replayio/devtools-sub005/internal/inspector/value"
	"github.com/replayio/devtools-sub005/internal/protocol"
)

var (
	// ErrNotFound means the server does not know the object or getter
	ErrNotFound = protocol.ErrNotFound
	// ErrScriptFailed means evaluated code or a getter threw
	ErrScriptFailed = protocol.ErrScriptFailed
	// ErrUnavailable means the breaker is open
	ErrUnavailable = errors.New("remote context unavailable")
	// ErrUnexpectedStatus covers every other non-2xx answer
	ErrUnexpectedStatus = errors.New("unexpected remote status")
)

// Config configures the client
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// RateLimit is requests per second; zero disables limiting
	RateLimit float64
}

// DefaultConfig returns client defaults for baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      10 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

type noRetryKey struct{}

// Client implements inspector.Backend over HTTP
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// New creates a client for cfg.BaseURL
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = cfg.RetryWaitMin
	retryClient.RetryWaitMax = cfg.RetryWaitMax
	retryClient.Logger = nil
	retryClient.CheckRetry = checkRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "devtools-inspector/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetLogger(logger.Sugar()).
		OnBeforeRequest(tracing.RestyMiddleware)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit)+1)
	}

	breaker := resilience.New("remote-resolver", resilience.Settings{
		Trials:   3,
		Window:   60 * time.Second,
		Cooldown: 15 * time.Second,
		Trip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Client{
		resty:   restyClient,
		limiter: limiter,
		breaker: breaker,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

func (c *Client) Evaluate(ctx context.Context, expression string) (value.RemoteValue, error) {
	var out protocol.ValueResponse
	err := c.do(ctx, false, func(req *resty.Request) (*resty.Response, error) {
		return req.SetBody(protocol.EvaluateRequest{Expression: expression}).
			SetResult(&out).
			Post(protocol.EvaluatePath)
	})
	if err != nil {
		return value.RemoteValue{}, fmt.Errorf("evaluate: %w", err)
	}
	if out.Value == nil {
		return value.Undefined(), nil
	}
	return *out.Value, nil
}

func (c *Client) FetchProperties(ctx context.Context, id value.ObjectID, rng *bucket.Range) ([]value.PropertyDescriptor, error) {
	var out protocol.PropertiesResponse
	err := c.do(ctx, true, func(req *resty.Request) (*resty.Response, error) {
		return req.SetQueryParams(protocol.RangeQuery(rng)).
			SetResult(&out).
			Get(protocol.PropertiesPath(id))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return out.Properties, nil
}

func (c *Client) InvokeGetter(ctx context.Context, ref value.ObjectID) (value.RemoteValue, error) {
	var out protocol.ValueResponse
	err := c.do(ctx, false, func(req *resty.Request) (*resty.Response, error) {
		return req.SetResult(&out).Post(protocol.GetterPath(ref))
	})
	if err != nil {
		return value.RemoteValue{}, fmt.Errorf("getter %s: %w", ref, err)
	}
	if out.Value == nil {
		return value.Undefined(), nil
	}
	return *out.Value, nil
}

// do runs one request under the limiter and breaker. Answers the server
// gave on purpose (4xx) do not count against the breaker.
func (c *Client) do(ctx context.Context, retry bool, send func(*resty.Request) (*resty.Response, error)) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	if !retry {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	var errBody protocol.ErrorResponse
	start := time.Now()
	resp, err := resilience.Run(ctx, c.breaker, func(ctx context.Context) (*resty.Response, error) {
		resp, err := send(c.resty.R().SetContext(ctx).SetError(&errBody))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, statusError(resp, errBody)
		}
		return resp, nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		c.logger.Debug("Remote request failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return err
	}

	if resp.IsError() {
		return statusError(resp, errBody)
	}
	return nil
}

func statusError(resp *resty.Response, body protocol.ErrorResponse) error {
	msg := body.Error
	if msg == "" {
		msg = resp.Status()
	}

	switch resp.StatusCode() {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrScriptFailed, msg)
	default:
		return fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode(), msg)
	}
}

// checkRetry retries only requests that did not opt out
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
