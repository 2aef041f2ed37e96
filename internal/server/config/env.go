package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envPrefix namespaces every variable, e.g. AUTHKEEPER_DATABASE_DSN.
const envPrefix = "AUTHKEEPER_"

// parseEnv overlays variables that are set in environ (or the process
// environment when environ is nil). Unset variables leave fields untouched.
func parseEnv(config *Config, environ map[string]string) error {
	opts := env.Options{Prefix: envPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
