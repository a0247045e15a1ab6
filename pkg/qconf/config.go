// Package qconf resolves the per-job scheduler configuration: a base layer
// read once from a file and an ordered layer of overrides on top of it.
package qconf

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/quatton/qfold/pkg/qerr"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// Override sets one key. Fan-out keys expand into several physical keys when
// applied.
type Override struct {
	Key   string
	Value any
}

// Set is shorthand for an Override literal.
func Set(key string, value any) Override {
	return Override{Key: key, Value: value}
}

// ParseOverride parses a "key=value" flag. The value is decoded as a YAML
// scalar so that "false" is a boolean and "8" an integer, exactly as if it had
// been written in the base file.
func ParseOverride(s string) (Override, error) {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return Override{}, qerr.Newf(qerr.CodeConfigError, "override %q: want key=value", s)
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return Override{}, qerr.New(qerr.CodeConfigError, fmt.Errorf("override %s: %w", key, err))
	}
	switch value.(type) {
	case nil:
		value = raw
	case map[string]any, []any:
		return Override{}, qerr.Newf(qerr.CodeConfigError, "override %s: value must be a scalar", key)
	}
	return Override{Key: key, Value: value}, nil
}

// Base is the shared base layer. It is read once and never modified.
type Base struct {
	path   string
	values map[string]any
}

// LoadBase reads the base configuration file. Any format viper understands is
// accepted; keys are flat.
func LoadBase(path string) (*Base, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, qerr.New(qerr.CodeConfigError, fmt.Errorf("reading base config %s: %w", path, err))
	}
	values := make(map[string]any)
	for _, key := range v.AllKeys() {
		values[key] = v.Get(key)
	}
	return &Base{path: path, values: values}, nil
}

// NewBase builds a base layer from values already in memory.
func NewBase(values map[string]any) *Base {
	return &Base{values: maps.Clone(values)}
}

// Path returns the file the base was read from, if any.
func (b *Base) Path() string { return b.path }

// Resolve applies overrides in order on a copy of the base. Later overrides
// win; unknown keys are inserted. Values keep their types.
func (b *Base) Resolve(overrides ...Override) Configuration {
	values := make(map[string]any, len(b.values)+len(overrides))
	maps.Copy(values, b.values)
	for _, o := range overrides {
		apply(values, o)
	}
	return Configuration{values: values}
}

func apply(values map[string]any, o Override) {
	values[o.Key] = o.Value
	expand, ok := FanOut[o.Key]
	if !ok {
		return
	}
	for _, derived := range expand(o.Value) {
		values[derived.Key] = derived.Value
	}
}

// Configuration is an immutable, resolved key/value mapping.
type Configuration struct {
	values map[string]any
}

// Get returns the raw value of key.
func (c Configuration) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c Configuration) Has(key string) bool {
	_, ok := c.values[key]
	return ok
}

// String formats the value of key, or returns "" if it is unset.
func (c Configuration) String(key string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Bool returns the value of key when it is a real boolean.
func (c Configuration) Bool(key string) (value, ok bool) {
	value, ok = c.values[key].(bool)
	return value, ok
}

// IsFalse reports whether key is set to the boolean false. The string
// "false" does not count.
func (c Configuration) IsFalse(key string) bool {
	v, ok := c.Bool(key)
	return ok && !v
}

// Keys returns the configured keys in sorted order.
func (c Configuration) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the values.
func (c Configuration) Map() map[string]any {
	return maps.Clone(c.values)
}

// With returns a new Configuration with overrides applied on top of c.
func (c Configuration) With(overrides ...Override) Configuration {
	return (&Base{values: c.values}).Resolve(overrides...)
}
