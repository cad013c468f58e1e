// SPDX-License-Identifier: MIT
package llm

import "time"

// RetryConfig bounds the retry loop around one completion request.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int

	// BackoffBase is the wait before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier grows the wait on each further retry.
	BackoffMultiplier float64

	// MaxBackoff caps the wait regardless of attempt count.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the retry defaults for completion requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

func (rc RetryConfig) normalized() RetryConfig {
	if rc.MaxAttempts <= 0 {
		rc.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if rc.BackoffBase <= 0 {
		rc.BackoffBase = DefaultRetryConfig().BackoffBase
	}
	if rc.BackoffMultiplier <= 1 {
		rc.BackoffMultiplier = DefaultRetryConfig().BackoffMultiplier
	}
	if rc.MaxBackoff <= 0 {
		rc.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}
	return rc
}
