package can

import (
	"fmt"
	"reflect"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Backend specific configuration.
// Well known parameters have a dedicated field, everything else
// goes into Params and is interpreted by the backend.
type Config struct {
	Bitrate int
	Logger  *log.Entry
	Params  map[string]any
}

type Option func(*Config)

func WithBitrate(bitrate int) Option {
	return func(c *Config) { c.Bitrate = bitrate }
}

func WithLogger(logger *log.Entry) Option {
	return func(c *Config) { c.Logger = logger }
}

func WithParam(key string, value any) Option {
	return func(c *Config) { c.Params[key] = value }
}

func WithParams(params map[string]any) Option {
	return func(c *Config) {
		for k, v := range params {
			c.Params[k] = v
		}
	}
}

// NewConfig applies opts on top of an empty configuration
func NewConfig(opts ...Option) Config {
	cfg := Config{Params: map[string]any{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}
	return cfg
}

func (c Config) Has(key string) bool {
	_, ok := c.Params[key]
	return ok
}

// Int returns parameter key as an int, or def if it is absent
func (c Config) Int(key string, def int) (int, error) {
	raw, ok := c.Params[key]
	if !ok {
		return def, nil
	}
	// Named integer types such as hardware or language enums
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int(rv.Uint()), nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return def, fmt.Errorf("%w : parameter %q : %v", ErrInvalidConfiguration, key, err)
	}
	return v, nil
}

func (c Config) Bool(key string, def bool) (bool, error) {
	raw, ok := c.Params[key]
	if !ok {
		return def, nil
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return def, fmt.Errorf("%w : parameter %q : %v", ErrInvalidConfiguration, key, err)
	}
	return v, nil
}

func (c Config) String(key string, def string) (string, error) {
	raw, ok := c.Params[key]
	if !ok {
		return def, nil
	}
	v, err := cast.ToStringE(raw)
	if err != nil {
		return def, fmt.Errorf("%w : parameter %q : %v", ErrInvalidConfiguration, key, err)
	}
	return v, nil
}

// Duration accepts either a time.Duration, a duration string ("100ms")
// or a number of seconds.
func (c Config) Duration(key string, def time.Duration) (time.Duration, error) {
	raw, ok := c.Params[key]
	if !ok {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	}
	v, err := cast.ToDurationE(raw)
	if err != nil {
		return def, fmt.Errorf("%w : parameter %q : %v", ErrInvalidConfiguration, key, err)
	}
	return v, nil
}
