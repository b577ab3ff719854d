package config

import "time"

type RecoveryConfig interface {
	GetRecoveryCooldown() time.Duration
	GetRecoveryMaxAttempts() int
	GetSweepInterval() time.Duration
	GetSweepIdle() time.Duration
}

type Recovery struct {
	Cooldown      time.Duration `yaml:"cooldown" validate:"gt=0"`
	MaxAttempts   int           `yaml:"maxAttempts" validate:"min=1"`
	SweepInterval time.Duration `yaml:"sweepInterval" validate:"gt=0"`
	// Attempt records idle for longer than this are dropped, which re-arms recovery
	// the way a page reload would. Exhausted records are kept for the cookie lifetime.
	SweepIdle time.Duration `yaml:"sweepIdle" validate:"gtefield=Cooldown"`
}

var _ RecoveryConfig = Recovery{}

func (r Recovery) GetRecoveryCooldown() time.Duration {
	return r.Cooldown
}

func (r Recovery) GetRecoveryMaxAttempts() int {
	return r.MaxAttempts
}

func (r Recovery) GetSweepInterval() time.Duration {
	return r.SweepInterval
}

func (r Recovery) GetSweepIdle() time.Duration {
	return r.SweepIdle
}
