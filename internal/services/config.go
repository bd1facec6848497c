// Package services loads and validates the downstream service credential
// document: which hosts and secrets the bridge may use to reach Autobrr,
// Radarr, and qBittorrent, plus the release filter thresholds.
//
// The document is layered koanf-style: JSON file first, then environment
// variables with the FLIXBRIDGE_ prefix (FLIXBRIDGE_AUTOBRR_APIKEY maps to
// autobrr.apikey). The loaded Config is immutable; callers hold it by
// reference for the life of the process.
package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Service names recognized by readiness checks and dispatch.
const (
	Autobrr     = "autobrr"
	Radarr      = "radarr"
	Qbittorrent = "qbittorrent"
)

const envPrefix = "FLIXBRIDGE_"

// APICredential connects to a service authenticated by API key.
type APICredential struct {
	Host   string `koanf:"host" json:"host" validate:"required"`
	APIKey string `koanf:"apikey" json:"-" validate:"required"`
}

// BasicCredential connects to a service authenticated by username/password.
type BasicCredential struct {
	Host     string `koanf:"host" json:"host" validate:"required"`
	Username string `koanf:"username" json:"-" validate:"required"`
	Password string `koanf:"password" json:"-" validate:"required"`
}

// Filters holds release acceptance thresholds.
type Filters struct {
	MinSeeders int      `koanf:"min_seeders" json:"min_seeders" validate:"gte=0"`
	Quality    []string `koanf:"quality" json:"quality" validate:"required"`
}

// Config is the full downstream credential document.
type Config struct {
	Autobrr     APICredential   `koanf:"autobrr" json:"autobrr"`
	Radarr      APICredential   `koanf:"radarr" json:"radarr"`
	Qbittorrent BasicCredential `koanf:"qbittorrent" json:"qbittorrent"`
	Filters     Filters         `koanf:"filters" json:"filters"`
}

// ValidationError names the config section and key that failed validation.
type ValidationError struct {
	Section string
	Key     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid key %q in section %q", e.Key, e.Section)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Load reads the credential document from path, applies environment
// overrides, and validates it. Validation failures are reported as a typed
// *ValidationError before the core ever runs.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return nil, fmt.Errorf("load config file %s: %w", path, err)
	}

	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		// The first underscore separates section from key; keys such as
		// min_seeders keep their own underscores.
		return strings.Replace(s, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section for required keys and reports the first
// failure as a *ValidationError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	// Namespace looks like "Config.autobrr.apikey" with registered tag names.
	parts := strings.Split(fieldErrs[0].Namespace(), ".")
	ve := &ValidationError{Key: fieldErrs[0].Field()}
	if len(parts) >= 2 {
		ve.Section = parts[1]
	}
	return ve
}
