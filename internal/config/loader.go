package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	EnvPrefix        = "RECONCILER_"
	configFileEnvVar = EnvPrefix + "CONFIG_FILE"
)

// defaults are loaded first; the YAML file and then the environment override them.
// Every supported key must appear here so environment names can be matched to it.
var defaults = map[string]any{
	"env.env":             envDev,
	"env.appName":         "Session Reconciler",
	"env.port":            "8080",
	"env.baseURL":         "http://localhost:8080",
	"env.logLevel":        "info",
	"env.shutdownTimeout": "10s",

	"cors.allowedOrigins": []string{},
	"cors.allowedMethods": "GET, POST, OPTIONS",
	"cors.allowedHeaders": "Content-Type, Authorization",

	"session.cookieKey":         "",
	"session.sessionCookieName": "sid",
	"session.tenantCookieName":  "tid",
	"session.cookieMaxAge":      "24h",
	"session.secureCookies":     secureAuto,
	"session.cacheTTL":          "30s",
	"session.requestTimeout":    "3s",

	"onboarding.verifyBaseDelay": "1s",
	"onboarding.verifyMaxDelay":  "5s",
	"onboarding.verifyAttempts":  5,
	"onboarding.requestTimeout":  "3s",

	"recovery.cooldown":      "5s",
	"recovery.maxAttempts":   3,
	"recovery.sweepInterval": "1m",
	"recovery.sweepIdle":     "10m",

	"identity.provider":      ProviderOIDC,
	"identity.issuerURL":     "",
	"identity.clientID":      "",
	"identity.clientSecret":  "",
	"identity.redirectPath":  "/auth/callback",
	"identity.scopes":        []string{"openid", "email", "profile"},
	"identity.tenantClaim":   "tenant_id",
	"identity.hmacSecret":    "",
	"identity.signInFlowTTL": "10m",

	"backend.mode":         BackendMemory,
	"backend.url":          "",
	"backend.timeout":      "5s",
	"backend.tokenURL":     "",
	"backend.clientID":     "",
	"backend.clientSecret": "",
	"backend.scopes":       []string{},
	"backend.readLag":      2,
}

type loadOptions struct {
	configFile string
	environ    func() []string
}

type LoadOption func(*loadOptions)

// WithConfigFile loads a YAML file on top of the defaults. An empty path is ignored.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithEnviron replaces os.Environ (primarily for testing)
func WithEnviron(environ func() []string) LoadOption {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// Load builds the configuration from defaults, an optional YAML file and RECONCILER_*
// environment variables, in that order, and validates the result.
func Load(options ...LoadOption) (Config, error) {
	opts := loadOptions{environ: os.Environ}
	for _, opt := range options {
		opt(&opts)
	}

	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(err, "set default %s", key)
		}
	}

	if opts.configFile != "" {
		if err := k.Load(file.Provider(opts.configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", opts.configFile)
		}
	}

	known := k.Raw()
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:      EnvPrefix,
		EnvironFunc: opts.environ,
		TransformFunc: func(key, value string) (string, any) {
			// RECONCILER_SESSION_CACHE_TTL -> session.cacheTTL
			return canonicalizeEnvKey(strings.TrimPrefix(key, EnvPrefix), known), value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	cfg := mainConfig{}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "yaml",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config failed")
	}

	if cfg.Session.CookieKey == "" && cfg.IsDev() {
		key, err := randomKey()
		if err != nil {
			return nil, err
		}
		cfg.Session.CookieKey = key
		log.Warn().Msg("no session.cookieKey configured, using a per-process key (DEV only)")
	}
	cfg.Identity.baseURL = cfg.GetBaseURL()

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func randomKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate cookie key")
	}
	return hex.EncodeToString(b), nil
}

// canonicalizeEnvKey maps an underscore separated name onto the existing key tree.
// Several segments may form one key, so CACHE_TTL matches cacheTTL. Names with no
// match are kept lowercase and end up unused.
func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	var segments []string
	for _, s := range strings.Split(strings.ToLower(rawKey), "_") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return ""
	}

	canonical := make([]string, 0, len(segments))
	current := existing
	for i := 0; i < len(segments); {
		matched, next, width := longestMatch(current, segments[i:])
		if width == 0 {
			canonical = append(canonical, segments[i])
			current = nil
			i++
			continue
		}
		canonical = append(canonical, matched)
		current = next
		i += width
	}
	if current != nil {
		// A name that stops on a section: RECONCILER_ENV means env.env.
		last := canonical[len(canonical)-1]
		if _, ok := current[last]; !ok {
			return ""
		}
		canonical = append(canonical, last)
	}
	return strings.Join(canonical, ".")
}

func longestMatch(current map[string]any, segments []string) (string, map[string]any, int) {
	if len(current) == 0 {
		return "", nil, 0
	}
	for width := len(segments); width > 0; width-- {
		needle := normalizeToken(strings.Join(segments[:width], ""))
		for key, value := range current {
			if normalizeToken(key) != needle {
				continue
			}
			child, _ := value.(map[string]any)
			return key, child, width
		}
	}
	return "", nil, 0
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}
	return normalized.String()
}
