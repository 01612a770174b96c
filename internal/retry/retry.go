// Package retry wraps github.com/cenkalti/backoff/v4 with the two
// retry shapes this program needs: inventory HTTP calls (3 attempts,
// 2-10s exponential) and per-switch SNMP collection (2 attempts).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop's attempt count and backoff interval.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Inventory is the policy used for NetBox REST calls: 3 attempts,
// exponential backoff between 2s and 10s.
var Inventory = Policy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second}

// SNMPSwitch is the policy used for per-switch FDB collection: 2
// attempts, exponential backoff between 1s and 5s.
var SNMPSwitch = Policy{MaxAttempts: 2, InitialInterval: 1 * time.Second, MaxInterval: 5 * time.Second}

// Do runs fn, retrying on error per the policy. It gives up early if
// ctx is cancelled.
func Do(ctx context.Context, p Policy, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0 // bounded by MaxAttempts instead

	bo := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1)), ctx)
	return backoff.Retry(fn, bo)
}
