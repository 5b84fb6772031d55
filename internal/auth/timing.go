package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig sets the minimum latency of a failed login
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration // jitter range added on top of BaseDelay
}

// TimingDelay pads failed logins so that "unknown username" and "wrong
// password" take about the same time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// Pad sleeps until at least base+jitter has passed since start. It returns
// early when ctx is done.
func (td *TimingDelay) Pad(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (td *TimingDelay) target() time.Duration {
	return td.config.BaseDelay + cryptoJitter(td.config.RandomDelay)
}

// cryptoJitter returns a duration in [0, max) from crypto/rand
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}
