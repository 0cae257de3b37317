// Package config holds the reusable pieces of the Viper bootstrap:
// environment-variable binding and the conventional config-file search.
// It carries no global state; callers own their *viper.Viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// BindEnv wires environment overrides into v. Dotted keys map to
// underscored variables under the prefix, e.g. "server.port" becomes
// PREFIX_SERVER_PORT.
func BindEnv(v *viper.Viper, prefix string) {
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile loads configuration into v. An explicit path must exist; with
// an empty path the search paths are tried for a file named "config" and
// a missing file is not an error, so defaults and environment variables
// alone can run the process.
func ReadFile(v *viper.Viper, explicitPath string, searchPaths ...string) error {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	v.SetConfigName("config")
	for _, path := range searchPaths {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
