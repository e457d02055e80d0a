package fetcher

import (
	"time"

	"github.com/sirupsen/logrus"
	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds every request made by a remote record fetcher.
	DefaultTimeout = 5 * time.Second

	// Default retry configuration, used only when retries are enabled
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	// Timeout bounds a single request. Zero means DefaultTimeout.
	Timeout time.Duration
	// RetryCount enables retries with exponential backoff. Zero disables them.
	RetryCount int
	Logger     logrus.FieldLogger
}

// NewHTTPClient creates a new HTTP client with a bounded timeout and optional
// retry logic with exponential backoff
func NewHTTPClient(baseURL string, opts ClientOptions) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		AddRequestMiddleware(forceJSON)

	if opts.RetryCount > 0 {
		client.
			SetRetryCount(opts.RetryCount).
			SetRetryWaitTime(defaultRetryWaitTime).
			SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
			AddRetryConditions(retryCondition).
			AddRetryHooks(retryHook(logger))
	}

	return client
}

// forceJSON decodes every response body as JSON whatever its Content-Type,
// so a successful non-JSON body fails to decode instead of leaving the
// result empty.
func forceJSON(_ *resty.Client, r *resty.Request) error {
	if r.ForceResponseContentType == "" {
		r.SetForceResponseContentType("application/json")
	}
	return nil
}

// retryCondition determines whether a request should be retried based on the response and error
func retryCondition(r *resty.Response, err error) bool {
	// Retry on network errors
	if err != nil {
		return true
	}

	switch code := r.StatusCode(); {
	case code >= 500:
		return true
	case code == 429, code == 408:
		return true
	default:
		return false
	}
}

// retryHook logs retry attempts for observability
func retryHook(logger logrus.FieldLogger) func(*resty.Response, error) {
	return func(r *resty.Response, err error) {
		entry := logger.WithFields(logrus.Fields{
			"url":     r.Request.URL,
			"attempt": r.Request.Attempt,
		})
		if err != nil {
			entry.WithError(err).Debug("retrying request due to error")
			return
		}
		entry.WithField("status_code", r.StatusCode()).Debug("retrying request due to status code")
	}
}
