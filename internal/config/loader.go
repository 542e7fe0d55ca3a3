package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CARDFLOW_ISSUER_HTTPADDR.
const EnvPrefix = "CARDFLOW"

// Load fills cfg, which must already hold its defaults, from the optional
// YAML file at path and then from environment variables named
// CARDFLOW_<ROLE>_<FIELD>. Keys are matched case-insensitively against the
// struct field names.
func Load(path, role string, cfg any) error {
	v := viper.New()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix + "_" + strings.ToUpper(role))
	for _, key := range fieldKeys(cfg) {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decoding %s config: %w", role, err)
	}
	return nil
}

// fieldKeys lists the top-level exported fields of the struct cfg points to.
func fieldKeys(cfg any) []string {
	t := reflect.TypeOf(cfg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		keys = append(keys, strings.ToLower(f.Name))
	}
	return keys
}

// Getenv returns the value of k or def when unset.
func Getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
