// Package config adapts Viper settings into component configuration and
// builds the process logger.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Section decodes the keys under key into target. Fields already set on
// target act as defaults for keys the section does not mention. Values are
// read through v.Get so environment overrides apply.
func Section(v *viper.Viper, key string, target any) error {
	if v == nil {
		return nil
	}
	prefix := strings.ToLower(key) + "."
	sub := viper.New()
	found := false
	for _, k := range v.AllKeys() {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			sub.Set(rest, v.Get(k))
			found = true
		}
	}
	if !found {
		return nil
	}
	if err := sub.Unmarshal(target); err != nil {
		return fmt.Errorf("decode %s config: %w", key, err)
	}
	return nil
}
