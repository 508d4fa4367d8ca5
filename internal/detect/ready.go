package detect

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// WaitForReady polls the collaborator health endpoint with exponential
// backoff until it answers or the timeout elapses.
func (c *Client) WaitForReady(ctx context.Context, timeout time.Duration) error {
	backoff := retry.NewExponential(250 * time.Millisecond)
	backoff = retry.WithCappedDuration(5*time.Second, backoff)
	backoff = retry.WithMaxDuration(timeout, backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := c.Health(ctx); err != nil {
			c.logger.Debugw("collaborator not ready", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
