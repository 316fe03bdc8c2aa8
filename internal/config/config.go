package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: http.addr is read from
// RIDESEARCH_HTTP_ADDR.
const EnvPrefix = "RIDESEARCH"

// ServerConfig captures all tunable parameters for the rides API process.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN         string
	RunMigrations bool

	PageSize  int
	AuthToken string

	// Session coordinators search in-process with these settings.
	Debounce       time.Duration
	RequestTimeout time.Duration

	LogLevel string
	LogFile  string
}

// ConsumerConfig configures the search analytics consumer.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string

	RedisAddr     string
	RedisPassword string

	MetricsAddr string

	LogLevel string
	LogFile  string
}

// ClientConfig configures a coordinator talking to a remote rides API.
type ClientConfig struct {
	BaseURL        string
	Token          string
	Debounce       time.Duration
	RequestTimeout time.Duration
	Fallback       bool

	LogLevel string
	LogFile  string
}

// New returns a viper instance with defaults and environment binding set.
// When file is non-empty it is read on top of the defaults.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "5s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.idle_timeout", "120s")
	v.SetDefault("http.shutdown_timeout", "15s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.cache_ttl", "30s")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "ride-searches")
	v.SetDefault("kafka.group", "ride-search-analytics")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.migrate", false)

	v.SetDefault("search.page_size", 10)
	v.SetDefault("search.debounce", "450ms")
	v.SetDefault("search.request_timeout", "10s")
	v.SetDefault("search.fallback", true)

	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.token", "")
	v.SetDefault("auth.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("metrics.addr", ":2112")
}

func LoadServerConfig(v *viper.Viper) (ServerConfig, error) {
	var errs []error
	cfg := ServerConfig{
		HTTPAddr:        strings.TrimSpace(v.GetString("http.addr")),
		ReadTimeout:     duration(v, "http.read_timeout", &errs),
		WriteTimeout:    duration(v, "http.write_timeout", &errs),
		IdleTimeout:     duration(v, "http.idle_timeout", &errs),
		ShutdownTimeout: duration(v, "http.shutdown_timeout", &errs),
		RedisAddr:       strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword:   v.GetString("redis.password"),
		CacheTTL:        duration(v, "redis.cache_ttl", &errs),
		KafkaBrokers:    stringList(v, "kafka.brokers"),
		KafkaTopic:      strings.TrimSpace(v.GetString("kafka.topic")),
		PGDSN:           strings.TrimSpace(v.GetString("postgres.dsn")),
		RunMigrations:   v.GetBool("postgres.migrate"),
		PageSize:        v.GetInt("search.page_size"),
		AuthToken:       v.GetString("auth.token"),
		Debounce:        duration(v, "search.debounce", &errs),
		RequestTimeout:  duration(v, "search.request_timeout", &errs),
		LogLevel:        strings.ToLower(v.GetString("log.level")),
		LogFile:         v.GetString("log.file"),
	}

	if cfg.HTTPAddr == "" {
		errs = append(errs, fmt.Errorf("http.addr must not be empty"))
	}
	if cfg.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("search.page_size must be > 0"))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic is required when kafka.brokers is set"))
	}
	return cfg, errors.Join(errs...)
}

func LoadConsumerConfig(v *viper.Viper) (ConsumerConfig, error) {
	var errs []error
	cfg := ConsumerConfig{
		KafkaBrokers:  stringList(v, "kafka.brokers"),
		KafkaTopic:    strings.TrimSpace(v.GetString("kafka.topic")),
		KafkaGroup:    strings.TrimSpace(v.GetString("kafka.group")),
		RedisAddr:     strings.TrimSpace(v.GetString("redis.addr")),
		RedisPassword: v.GetString("redis.password"),
		MetricsAddr:   strings.TrimSpace(v.GetString("metrics.addr")),
		LogLevel:      strings.ToLower(v.GetString("log.level")),
		LogFile:       v.GetString("log.file"),
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.KafkaTopic == "" {
		errs = append(errs, fmt.Errorf("kafka.topic must not be empty"))
	}
	if cfg.KafkaGroup == "" {
		errs = append(errs, fmt.Errorf("kafka.group must not be empty"))
	}
	return cfg, errors.Join(errs...)
}

func LoadClientConfig(v *viper.Viper) (ClientConfig, error) {
	var errs []error
	cfg := ClientConfig{
		BaseURL:        strings.TrimSpace(v.GetString("api.base_url")),
		Token:          v.GetString("api.token"),
		Debounce:       duration(v, "search.debounce", &errs),
		RequestTimeout: duration(v, "search.request_timeout", &errs),
		Fallback:       v.GetBool("search.fallback"),
		LogLevel:       strings.ToLower(v.GetString("log.level")),
		LogFile:        v.GetString("log.file"),
	}
	if cfg.BaseURL == "" {
		errs = append(errs, fmt.Errorf("api.base_url must not be empty"))
	}
	if cfg.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("search.debounce must be > 0"))
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("search.request_timeout must be >= 0"))
	}
	return cfg, errors.Join(errs...)
}

func duration(v *viper.Viper, key string, errs *[]error) time.Duration {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
		return 0
	}
	return d
}

// stringList accepts either a list from a config file or a comma separated
// string from the environment.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).([]any); ok {
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			if s := strings.TrimSpace(fmt.Sprint(r)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return splitAndTrim(v.GetString(key))
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
