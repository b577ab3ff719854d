package config

import (
	"sort"
	"strings"
)

type Cors struct {
	AllowedOrigins []string `yaml:"allowedOrigins" validate:"dive,required"`
	AllowedMethods string   `yaml:"allowedMethods" validate:"required"`
	AllowedHeaders string   `yaml:"allowedHeaders" validate:"required"`
}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[strings.TrimSuffix(origin, "/")]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

func (c Cors) GetAllowedOrigins() AllowedOrigins {
	origins := make(AllowedOrigins, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins[strings.TrimSuffix(o, "/")] = nullValue{}
		}
	}
	return origins
}

func (c Cors) GetAllowedMethods() string {
	return c.AllowedMethods
}

func (c Cors) GetAllowedHeaders() string {
	return c.AllowedHeaders
}
