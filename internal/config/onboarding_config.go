package config

import "time"

type OnboardingConfig interface {
	GetVerifyBaseDelay() time.Duration
	GetVerifyMaxDelay() time.Duration
	GetVerifyAttempts() int
	GetOnboardingRequestTimeout() time.Duration
}

type Onboarding struct {
	VerifyBaseDelay time.Duration `yaml:"verifyBaseDelay" validate:"gt=0"`
	VerifyMaxDelay  time.Duration `yaml:"verifyMaxDelay" validate:"gtefield=VerifyBaseDelay"`
	VerifyAttempts  int           `yaml:"verifyAttempts" validate:"min=1,max=20"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" validate:"gt=0"`
}

var _ OnboardingConfig = Onboarding{}

func (o Onboarding) GetVerifyBaseDelay() time.Duration {
	return o.VerifyBaseDelay
}

func (o Onboarding) GetVerifyMaxDelay() time.Duration {
	return o.VerifyMaxDelay
}

func (o Onboarding) GetVerifyAttempts() int {
	return o.VerifyAttempts
}

func (o Onboarding) GetOnboardingRequestTimeout() time.Duration {
	return o.RequestTimeout
}
