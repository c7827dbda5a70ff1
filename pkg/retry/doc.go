// Package retry provides retry logic with exponential backoff and jitter,
// tuned for database connection handling.
//
// Key Features:
//   - Multiple jitter strategies (None, Equal, Decorrelated)
//   - Configurable time and attempt limits
//   - Observability hooks (OnRetry callback)
//   - Full testability support (time abstraction)
//   - Detailed error reporting
//
// Basic Usage:
//
//	err := retry.Retry(ctx, func(ctx context.Context) error {
//	    return pool.Ping(ctx)
//	})
//
// Advanced Configuration:
//
//	config := retry.Config{
//	    MaxAttempts:    5,
//	    InitialDelay:   200 * time.Millisecond,
//	    MaxDelay:       10 * time.Second,
//	    MaxElapsedTime: 60 * time.Second,
//	    JitterStrategy: retry.JitterDecorrelated,
//	    OnRetry: func(attempt int, err error, delay time.Duration) {
//	        log.Printf("retry %d after %v: %v", attempt, delay, err)
//	    },
//	}
//	err := retry.Do(ctx, config, fn)
//
// Custom Retryable Check:
//
// DefaultRetryable covers transient connection-level errors. Database-specific
// busy conditions (e.g. SQLITE_BUSY) are not known to this package; pass a
// custom classifier:
//
//	err := retry.DoWithRetryable(ctx, config, fn, func(err error) bool {
//	    return strings.Contains(err.Error(), "database is locked")
//	})
package retry
