package service

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yndnr/pairmesh-go/internal/core/domain"
)

// ReconnectPolicy shapes the delay between reconnect attempts.
type ReconnectPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64

	// MaxAttempts stops retrying an identity after this many consecutive
	// attempts that never reached open. Zero retries forever.
	MaxAttempts int
}

// DefaultReconnectPolicy returns the default policy.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialInterval:     time.Second,
		MaxInterval:         2 * time.Minute,
		Multiplier:          2,
		RandomizationFactor: 0.2,
	}
}

func (p ReconnectPolicy) withDefaults() ReconnectPolicy {
	d := DefaultReconnectPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = max(d.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.RandomizationFactor < 0 || p.RandomizationFactor >= 1 {
		p.RandomizationFactor = d.RandomizationFactor
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retryState is the reconnect bookkeeping of one identity.
type retryState struct {
	backoff  *backoff.ExponentialBackOff
	attempts int
	timer    *time.Timer
}

// scheduleReconnect arranges exactly one Start of identity after the next
// backoff delay, or gives up once MaxAttempts is exceeded.
func (s *Supervisor) scheduleReconnect(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	st, ok := s.retries[identity]
	if !ok {
		st = &retryState{backoff: s.cfg.Reconnect.newBackOff()}
		s.retries[identity] = st
	}
	if st.timer != nil && st.timer.Stop() {
		// Replace an attempt that has not fired yet.
		s.wg.Done()
	}

	st.attempts++
	if limit := s.cfg.Reconnect.MaxAttempts; limit > 0 && st.attempts > limit {
		delete(s.retries, identity)
		s.metrics.ReconnectsExhausted.Inc()
		s.logger.Error("reconnect attempts exhausted, giving up",
			"identity", identity,
			"attempts", limit)
		return
	}

	delay := st.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = s.cfg.Reconnect.MaxInterval
	}
	attempt := st.attempts

	s.metrics.Reconnects.Inc()
	s.wg.Add(1)
	st.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.reconnect(identity, attempt)
	})

	s.logger.Info("reconnect scheduled",
		"identity", identity,
		"attempt", attempt,
		"delay", delay)
}

// reconnect runs one scheduled attempt.
func (s *Supervisor) reconnect(identity string, attempt int) {
	s.mu.Lock()
	if st, ok := s.retries[identity]; ok && st.attempts == attempt {
		st.timer = nil
	}
	s.mu.Unlock()

	status, err := s.Start(s.ctx, identity)
	switch {
	case errors.Is(err, domain.ErrSupervisorClosed):
		return
	case err != nil:
		s.logger.Warn("reconnect attempt failed", "identity", identity, "attempt", attempt, "error", err)
		s.scheduleReconnect(identity)
	default:
		s.logger.Debug("reconnect attempt started", "identity", identity, "attempt", attempt, "status", status)
	}
}

// resetRetry clears the backoff of identity after a successful open.
func (s *Supervisor) resetRetry(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.retries[identity]; ok && st.timer == nil {
		delete(s.retries, identity)
	}
}

// forgetRetry cancels any pending reconnect of identity.
func (s *Supervisor) forgetRetry(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.retries[identity]
	if !ok {
		return
	}
	if st.timer != nil && st.timer.Stop() {
		s.wg.Done()
	}
	delete(s.retries, identity)
}
