package realtime

import (
	"time"
)

// the backoff curve and give up threshold are pure functions of the attempt
// count, decoupled from timers and sockets so they can be unit tested without
// fake clocks tied to the transport.

type ReconnectPolicySettings struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// give up once this many attempts have failed. <= 0 retries forever.
	MaxAttempts int
}

func DefaultReconnectPolicySettings() *ReconnectPolicySettings {
	return &ReconnectPolicySettings{
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

type ReconnectPolicy struct {
	settings *ReconnectPolicySettings
}

func NewReconnectPolicyWithDefaults() *ReconnectPolicy {
	return NewReconnectPolicy(DefaultReconnectPolicySettings())
}

func NewReconnectPolicy(settings *ReconnectPolicySettings) *ReconnectPolicy {
	return &ReconnectPolicy{
		settings: settings,
	}
}

// exponential with ceiling: min(base * 2^(attempt-1), max).
// monotonically non decreasing in the attempt count.
func (self *ReconnectPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := self.settings.BaseDelay
	for i := 1; i < attempt; i += 1 {
		delay *= 2
		if self.settings.MaxDelay <= delay {
			return self.settings.MaxDelay
		}
	}
	if self.settings.MaxDelay < delay {
		return self.settings.MaxDelay
	}
	return delay
}

func (self *ReconnectPolicy) ShouldGiveUp(attempt int) bool {
	if self.settings.MaxAttempts <= 0 {
		return false
	}
	return self.settings.MaxAttempts <= attempt
}
