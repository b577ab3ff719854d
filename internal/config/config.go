package config

import (
	"os"
	"time"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	OnboardingConfig
	RecoveryConfig
	IdentityConfig
	BackendConfig
}

type EnvConfig interface {
	GetEnv() string
	IsDev() bool
	GetAppName() string
	GetPort() string
	GetBaseURL() string
	GetLogLevel() string
	GetShutdownTimeout() time.Duration
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars    `yaml:"env"`
	Cors       `yaml:"cors"`
	Session    `yaml:"session"`
	Onboarding `yaml:"onboarding"`
	Recovery   `yaml:"recovery"`
	Identity   `yaml:"identity"`
	Backend    `yaml:"backend"`
}

var _ Config = mainConfig{}

// New loads the configuration from the environment and, when RECONCILER_CONFIG_FILE
// names one, a YAML file.
func New() (Config, error) {
	return Load(WithConfigFile(os.Getenv(configFileEnvVar)))
}
