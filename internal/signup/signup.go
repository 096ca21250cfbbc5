// Package signup is the target-system account registration step. The
// Simulated registrar stands in for a real integration; the pipeline's
// contract (retry on failure) does not change when it is replaced.
package signup

import (
	"context"
	"math/rand"
	"time"

	"account_factory/internal/config"
)

type Request struct {
	Username string
	Email    string
	Phone    string
	Password string
}

type Result struct {
	Success bool
}

type Registrar interface {
	Register(ctx context.Context, req Request) (Result, error)
}

// Simulated succeeds with a fixed probability after a short random delay.
type Simulated struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
}

func NewSimulated(cfg config.SignupConfig) *Simulated {
	return &Simulated{
		successRate: cfg.SuccessRate,
		minDelay:    time.Duration(cfg.MinDelayMs) * time.Millisecond,
		maxDelay:    time.Duration(cfg.MaxDelayMs) * time.Millisecond,
	}
}

func (s *Simulated) Register(ctx context.Context, _ Request) (Result, error) {
	delay := s.minDelay
	if s.maxDelay > s.minDelay {
		delay += time.Duration(rand.Int63n(int64(s.maxDelay - s.minDelay)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-timer.C:
	}
	return Result{Success: rand.Float64() < s.successRate}, nil
}
