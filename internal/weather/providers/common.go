package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-tracker/internal/weather"
)

// HTTPClientConfig bundles the HTTP client and outbound pacing.
type HTTPClientConfig struct {
	Client  *resty.Client
	Limiter *rate.Limiter
}

var (
	errServerError  = errors.New("server error")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// doGet performs one GET through the limiter and the circuit breaker and returns
// the body of a 2xx response. Every failure is a *weather.FetchError; nothing is retried here.
// Only transport failures and 5xx responses count against the breaker.
func doGet(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	endpoint string,
	params map[string]string,
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, &weather.FetchError{Kind: weather.FetchNetwork, Err: errNoHTTPClient}
	}

	if cfg.Limiter != nil {
		if err := cfg.Limiter.Wait(ctx); err != nil {
			return nil, &weather.FetchError{Kind: weather.FetchNetwork, Err: fmt.Errorf("rate limit wait canceled: %w", err)}
		}
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := cfg.Client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(endpoint)
		if execErr != nil {
			return nil, execErr
		}
		if resp.StatusCode() >= 500 {
			return resp, fmt.Errorf("%w: %d", errServerError, resp.StatusCode())
		}
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.FetchError{Kind: weather.FetchNetwork, Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}
		if resp, ok := result.(*resty.Response); ok && resp != nil {
			return nil, &weather.FetchError{Kind: weather.FetchHTTPStatus, StatusCode: resp.StatusCode()}
		}
		return nil, &weather.FetchError{Kind: weather.FetchNetwork, Err: err}
	}

	resp, ok := result.(*resty.Response)
	if !ok {
		return nil, &weather.FetchError{Kind: weather.FetchNetwork, Err: fmt.Errorf("unexpected result type from circuit breaker")}
	}

	// non-2xx fails before the body is looked at
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &weather.FetchError{Kind: weather.FetchHTTPStatus, StatusCode: resp.StatusCode()}
	}
	return resp.Body(), nil
}
