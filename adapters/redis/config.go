package redis

import (
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config configures the per-node clients of a [Conn]. Zero values keep the
// go-redis defaults.
type Config struct {
	Username     string
	Password     string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int // per node
	// Options, if set, is applied to the options of every node client last.
	Options func(addr string, o *goredis.Options)
	Log     *slog.Logger
}

// ParseURL reads a redis:// URL into the seed address it names and a Config
// carrying its credentials and timeouts.
func ParseURL(rawURL string) (seed string, cfg Config, err error) {
	o, err := goredis.ParseURL(rawURL)
	if err != nil {
		return "", Config{}, fmt.Errorf("redis: parse url: %w", err)
	}
	return o.Addr, Config{
		Username:     o.Username,
		Password:     o.Password,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
	}, nil
}

func (c Config) options(addr string) *goredis.Options {
	o := &goredis.Options{
		Addr:         addr,
		Username:     c.Username,
		Password:     c.Password,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolSize:     c.PoolSize,
		// redirects are handled by the cluster client
		MaxRetries: -1,
	}
	if c.Options != nil {
		c.Options(addr, o)
	}
	return o
}
