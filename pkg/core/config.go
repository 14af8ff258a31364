package core

import (
	"bytes"

	"github.com/docker/go-units"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/packline/revstore/pkg/core/status"
)

// Keys understood in config.yaml.
const (
	configRevpropPackSize  = "revprop-pack-size"
	configCompressRevprops = "compress-revprops"
	configCacheNamespace   = "cache-namespace"
	configCacheSize        = "cache-size"
)

const (
	// DefaultRevpropPackSize is the revprop pack size limit applied when
	// config.yaml does not override it.
	DefaultRevpropPackSize = 64 * units.KiB

	defaultCacheSize = 128
)

// Config holds the per-repository tunables persisted in config.yaml.
// Every field has a working default, so the file is optional.
type Config struct {
	// RevpropPackSize bounds the cumulated property blob bytes per
	// revprop pack file. A single blob over the limit still gets a
	// pack of its own.
	RevpropPackSize int64

	// CompressRevprops applies zstd to revprop pack bodies
	CompressRevprops bool

	// CacheNamespace shares metadata caches between handles using the
	// same namespace. Empty keeps the cache private to the handle.
	CacheNamespace string

	// CacheSize is the metadata cache capacity in entries, 0 disables
	// caching
	CacheSize int

	_ struct{}
}

func defaultConfig() Config {
	return Config{
		RevpropPackSize: DefaultRevpropPackSize,
		CacheSize:       defaultCacheSize,
	}
}

// serialize renders config.yaml, with sizes in human units
func (c Config) serialize() ([]byte, error) {
	doc := map[string]interface{}{
		configRevpropPackSize:  units.BytesSize(float64(c.RevpropPackSize)),
		configCompressRevprops: c.CompressRevprops,
		configCacheSize:        c.CacheSize,
	}
	if c.CacheNamespace != "" {
		doc[configCacheNamespace] = c.CacheNamespace
	}
	return yaml.Marshal(doc)
}

// parseConfig reads config.yaml on top of the defaults. Sizes accept
// human units ("64KiB", "1MB") as well as plain byte counts.
func parseConfig(data []byte) (Config, error) {
	c := defaultConfig()
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return c, status.ErrBadConfig.Wrap(err)
	}
	if raw := v.GetString(configRevpropPackSize); raw != "" {
		size, err := units.RAMInBytes(raw)
		if err != nil {
			return c, status.ErrBadConfig.WrapMessage("%s: %v", configRevpropPackSize, err)
		}
		if size <= 0 {
			return c, status.ErrBadConfig.WrapMessage("%s must be positive", configRevpropPackSize)
		}
		c.RevpropPackSize = size
	}
	if v.IsSet(configCompressRevprops) {
		c.CompressRevprops = cast.ToBool(v.Get(configCompressRevprops))
	}
	if v.IsSet(configCacheSize) {
		c.CacheSize = cast.ToInt(v.Get(configCacheSize))
	}
	c.CacheNamespace = v.GetString(configCacheNamespace)
	return c, nil
}
