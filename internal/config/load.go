package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// ARBITER_SUBJECTIVITY_EMA_ALPHA=0.2.
const EnvPrefix = "ARBITER"

var durationType = reflect.TypeOf(time.Duration(0))

// #region load

// Load returns the defaults overlaid with the YAML file at path (optional)
// and ARBITER_ environment variables, then sanitized. Each key is parsed on
// its own; a value that does not parse keeps the default and its key is
// returned in rejected. Only an unreadable file is an error.
func Load(path string) (cfg Config, rejected []string, err error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg = Default()
	walk(reflect.ValueOf(&cfg).Elem(), "", func(key string, field reflect.Value) {
		if !v.IsSet(key) {
			return
		}
		if err := assign(field, v.Get(key)); err != nil {
			rejected = append(rejected, key)
		}
	})
	cfg.Sanitize()
	return cfg, rejected, nil
}

// Keys lists every recognized dotted key in sorted order.
func Keys() []string {
	cfg := Default()
	var keys []string
	walk(reflect.ValueOf(&cfg).Elem(), "", func(key string, _ reflect.Value) {
		keys = append(keys, key)
	})
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// YAML renders c in the same layout Load reads.
func (c Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// #endregion load

// #region reflect

// walk visits every leaf field reachable through yaml tags.
func walk(v reflect.Value, prefix string, visit func(key string, field reflect.Value)) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("yaml"), ",")
		if name == "-" || !sf.IsExported() {
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			walk(field, key, visit)
			continue
		}
		visit(key, field)
	}
}

func assign(field reflect.Value, raw any) error {
	if field.Type() == durationType {
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.Float64:
		f, err := cast.ToFloat64E(raw)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Int:
		n, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.String:
		s, err := cast.ToStringE(raw)
		if err != nil {
			return err
		}
		field.SetString(s)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// #endregion reflect
