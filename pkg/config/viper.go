// Package config binds command-line flags onto the Viper keys used by
// internal/config, so flags take precedence over files and environment.
package config

import (
	"fmt"
	"sort"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FlagKeys maps a flag name to the Viper key it overrides.
type FlagKeys map[string]string

// BindFlags binds each named flag in fs onto its Viper key. Unknown flag
// names are an error so typos in the mapping surface at startup.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys FlagKeys) error {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("bind flag %q: not defined", name)
		}
		if err := v.BindPFlag(keys[name], flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}
