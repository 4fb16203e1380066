package live

import (
	"time"

	"github.com/hazixroland-ai/tiktoklive/internal/platform/retry"
)

const (
	DefaultOpenFailureDelay = 5 * time.Second
	DefaultDisconnectDelay  = 3 * time.Second
)

// RetryPolicy decides how long to wait before reconnect number attempt
// (1-based, reset after every successful open). ok=false gives up.
type RetryPolicy interface {
	Delay(reason RetryReason, attempt int) (delay time.Duration, ok bool)
}

// FixedDelay waits a constant time per reason. MaxAttempts <= 0 retries forever.
type FixedDelay struct {
	OpenFailure time.Duration
	Disconnect  time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() FixedDelay {
	return FixedDelay{OpenFailure: DefaultOpenFailureDelay, Disconnect: DefaultDisconnectDelay}
}

func (p FixedDelay) Delay(reason RetryReason, attempt int) (time.Duration, bool) {
	if exhausted(p.MaxAttempts, attempt) {
		return 0, false
	}
	backoff := retry.Constant(p.OpenFailure)
	if reason == ReasonDropped {
		backoff = retry.Constant(p.Disconnect)
	}
	return backoff.Delay(attempt), true
}

// ExponentialDelay doubles from Initial up to Max regardless of reason.
type ExponentialDelay struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func (p ExponentialDelay) Delay(_ RetryReason, attempt int) (time.Duration, bool) {
	if exhausted(p.MaxAttempts, attempt) {
		return 0, false
	}
	return retry.Exponential{Initial: p.Initial, Max: p.Max}.Delay(attempt), true
}

func exhausted(maxAttempts, attempt int) bool {
	return maxAttempts > 0 && attempt > maxAttempts
}
