// Package config adapts Viper to plugin.Config and builds the process logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/LabGraphTeam/labgraph/pkg/plugin"
	"github.com/spf13/viper"
)

// Compile-time interface guard.
var _ plugin.Config = (*ViperConfig)(nil)

// ViperConfig implements plugin.Config on a Viper instance. Sections are
// addressed by key prefix on the root instance rather than through
// viper.Sub, which would drop environment overrides.
type ViperConfig struct {
	v      *viper.Viper
	prefix string
}

// New wraps v. A nil v yields an empty config so Sub on a missing section
// never hands a module a nil Config.
func New(v *viper.Viper) *ViperConfig {
	if v == nil {
		v = viper.New()
	}
	return &ViperConfig{v: v}
}

func (c *ViperConfig) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + "." + k
}

// Unmarshal decodes the section into target. AllSettings resolves every
// key through Get, so LG_* variables are applied.
func (c *ViperConfig) Unmarshal(target any) error {
	if c.prefix == "" {
		return c.v.Unmarshal(target)
	}
	var section any = c.v.AllSettings()
	for _, part := range strings.Split(c.prefix, ".") {
		m, ok := section.(map[string]any)
		if !ok {
			section = nil
			break
		}
		section = m[part]
	}
	m, _ := section.(map[string]any)

	sub := viper.New()
	if err := sub.MergeConfigMap(m); err != nil {
		return fmt.Errorf("config section %s: %w", c.prefix, err)
	}
	return sub.Unmarshal(target)
}

func (c *ViperConfig) Get(key string) any                   { return c.v.Get(c.key(key)) }
func (c *ViperConfig) GetString(key string) string          { return c.v.GetString(c.key(key)) }
func (c *ViperConfig) GetInt(key string) int                { return c.v.GetInt(c.key(key)) }
func (c *ViperConfig) GetFloat64(key string) float64        { return c.v.GetFloat64(c.key(key)) }
func (c *ViperConfig) GetBool(key string) bool              { return c.v.GetBool(c.key(key)) }
func (c *ViperConfig) GetDuration(key string) time.Duration { return c.v.GetDuration(c.key(key)) }
func (c *ViperConfig) IsSet(key string) bool                { return c.v.IsSet(c.key(key)) }

// Sub scopes the config to a section such as "plugins.qc".
func (c *ViperConfig) Sub(key string) plugin.Config {
	return &ViperConfig{v: c.v, prefix: c.key(key)}
}

// Viper exposes the root instance for top-level keys like server.port.
func (c *ViperConfig) Viper() *viper.Viper {
	return c.v
}
