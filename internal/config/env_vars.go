package config

import (
	"strings"
	"time"
)

const (
	envDev = "DEV"
)

type EnvVars struct {
	Env             string        `yaml:"env" validate:"required"`
	AppName         string        `yaml:"appName" validate:"required"`
	Port            string        `yaml:"port" validate:"required"`
	BaseURL         string        `yaml:"baseURL" validate:"required,url"`
	LogLevel        string        `yaml:"logLevel" validate:"oneof=trace debug info warn error"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(e.Env)
}

func (e EnvVars) IsDev() bool {
	return e.GetEnv() == envDev
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

// GetPort returns the listen address, e.g. ":8080".
func (e EnvVars) GetPort() string {
	if strings.HasPrefix(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

// GetBaseURL returns the externally visible URL of the service (e.g., "https://app.example.com").
// Redirect URIs are built from it.
func (e EnvVars) GetBaseURL() string {
	return strings.TrimSuffix(e.BaseURL, "/")
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}

func (e EnvVars) GetShutdownTimeout() time.Duration {
	return e.ShutdownTimeout
}
