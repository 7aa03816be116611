package venue

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	restTimeout    = 10 * time.Second
	restRetryCount = 3
	restRetryWait  = 750 * time.Millisecond
)

// newRESTClient builds the shared resty client shape used by all venue
// pollers: short timeout, a few retries with a fixed wait, and a per-venue
// rate limiter applied before every request.
func newRESTClient(limiter *rate.Limiter) *resty.Client {
	client := resty.New().
		SetTimeout(restTimeout).
		SetRetryCount(restRetryCount).
		SetRetryWaitTime(restRetryWait)

	if limiter != nil {
		client.OnBeforeRequest(func(c *resty.Client, r *resty.Request) error {
			ctx := r.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return limiter.Wait(ctx)
		})
	}
	return client
}

// checkStatus converts a non-2xx response into a StatusError.
func checkStatus(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &StatusError{Status: resp.StatusCode(), URL: resp.Request.URL}
}
