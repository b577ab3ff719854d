package config

import "time"

type BackendConfig interface {
	// GetBackendMode is "http" for the real backend or "memory" for the in-process
	// fakes used in development.
	GetBackendMode() string
	GetBackendURL() string
	GetBackendTimeout() time.Duration
	GetBackendTokenURL() string
	GetBackendClientID() string
	GetBackendClientSecret() string
	GetBackendScopes() []string
	GetMemoryReadLag() int
}

const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

type Backend struct {
	Mode         string        `yaml:"mode" validate:"oneof=http memory"`
	URL          string        `yaml:"url" validate:"required_if=Mode http,omitempty,url"`
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	TokenURL     string        `yaml:"tokenURL" validate:"omitempty,url"`
	ClientID     string        `yaml:"clientID" validate:"required_with=TokenURL"`
	ClientSecret string        `yaml:"clientSecret"`
	Scopes       []string      `yaml:"scopes"`
	// ReadLag is how many status reads the memory backend serves stale after a write.
	ReadLag int `yaml:"readLag" validate:"min=0,max=10"`
}

var _ BackendConfig = Backend{}

func (b Backend) GetBackendMode() string {
	return b.Mode
}

func (b Backend) GetBackendURL() string {
	return b.URL
}

func (b Backend) GetBackendTimeout() time.Duration {
	return b.Timeout
}

// GetBackendTokenURL is the client-credentials token endpoint. Empty disables
// service authentication.
func (b Backend) GetBackendTokenURL() string {
	return b.TokenURL
}

func (b Backend) GetBackendClientID() string {
	return b.ClientID
}

func (b Backend) GetBackendClientSecret() string {
	return b.ClientSecret
}

func (b Backend) GetBackendScopes() []string {
	return b.Scopes
}

func (b Backend) GetMemoryReadLag() int {
	return b.ReadLag
}
