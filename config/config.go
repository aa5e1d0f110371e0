// config/config.go
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Cache         CacheConfiguration
	Gateway       GatewayConfiguration
	Archive       ArchiveConfiguration
	Redis         RedisConfiguration
	Elasticsearch ElasticsearchConfiguration
	Metrics       MetricsConfiguration
	RateLimit     RateLimitConfiguration
	Log           LogConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port            string
	ShutdownTimeout time.Duration
}

// CacheConfiguration bounds the archive cache. TTL eviction only runs when
// both TTL and Period are set.
type CacheConfiguration struct {
	Max             int
	TTL             time.Duration
	Period          time.Duration
	PopulateTimeout time.Duration
}

// GatewayConfiguration tunes the HTTP surface.
type GatewayConfiguration struct {
	CacheFullStatus int
	WelcomeFile     string
}

// ArchiveConfiguration is handed to the archive manager as is.
type ArchiveConfiguration struct {
	Dir         string
	Peers       []string
	SyncRetry   time.Duration
	Refresh     time.Duration
	FetchWait   time.Duration
	NameTTL     time.Duration
	NameCache   int
	HTTPTimeout time.Duration
}

// RedisConfiguration stores data for Redis connection. Empty Addr disables Redis.
type RedisConfiguration struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// ElasticsearchConfiguration stores data for Elasticsearch connection. Empty URL disables auditing.
type ElasticsearchConfiguration struct {
	URL   string
	Index string
}

type MetricsConfiguration struct {
	Addr string
}

type RateLimitConfiguration struct {
	Requests int
	Per      time.Duration
}

type LogConfiguration struct {
	Level string
	Dir   string
}

var config *Configuration

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.shutdownTimeout", "5s")
	v.SetDefault("cache.max", 20)
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("cache.period", "0s")
	v.SetDefault("cache.populateTimeout", "3s")
	v.SetDefault("gateway.cacheFullStatus", http.StatusInternalServerError)
	v.SetDefault("gateway.welcomeFile", "")
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.peers", []string{})
	v.SetDefault("archive.syncRetry", "2s")
	v.SetDefault("archive.refresh", "30s")
	v.SetDefault("archive.fetchWait", "1s")
	v.SetDefault("archive.nameTTL", "1h")
	v.SetDefault("archive.nameCache", 512)
	v.SetDefault("archive.httpTimeout", "10s")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("elasticsearch.url", "")
	v.SetDefault("elasticsearch.index", "archive-events")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("rateLimit.requests", 0)
	v.SetDefault("rateLimit.per", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.dir", "")
}

// Load reads configuration from the first config.yaml found in paths,
// environment variables (GATEWAY_CACHE_MAX and so on) and defaults.
func Load(paths ...string) (*Configuration, error) {
	v := viper.New()
	for _, p := range paths {
		v.AddConfigPath(p) // path to look for the config file in
	}
	v.SetConfigName("config") // name of the config file (without extension)
	v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	v.SetEnvPrefix("gateway")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match

	SetDefaults(v)

	if len(paths) > 0 {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var conf Configuration
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// InitConfig loads the process configuration from ./config.
func InitConfig() error {
	conf, err := Load("config", ".")
	if err != nil {
		return err
	}
	config = conf
	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// Validate rejects values the gateway cannot run with.
func (c *Configuration) Validate() error {
	if c.Cache.Max < 0 {
		return fmt.Errorf("cache.max must not be negative, got %d", c.Cache.Max)
	}
	if c.Cache.TTL < 0 || c.Cache.Period < 0 {
		return fmt.Errorf("cache.ttl and cache.period must not be negative")
	}
	if c.Cache.PopulateTimeout <= 0 {
		return fmt.Errorf("cache.populateTimeout must be positive, got %s", c.Cache.PopulateTimeout)
	}
	if c.Gateway.CacheFullStatus < 400 || c.Gateway.CacheFullStatus > 599 {
		return fmt.Errorf("gateway.cacheFullStatus must be an HTTP error status, got %d", c.Gateway.CacheFullStatus)
	}
	return nil
}
