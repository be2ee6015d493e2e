// Package config loads the proxy's configuration from a file, environment
// variables and command-line flags, in the layering cobra/viper commands
// use throughout the teacher's cmd package.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one proxy process.
type Config struct {
	Mongo      Mongo
	Bind       Bind
	JS         JS
	DesignRepo DesignRepo
	Metrics    Metrics
	LogLevel   string

	// AllowDBDelete gates DELETE /{db} (spec §6: "forbidden unless
	// configured"). Defaults to false so a database is never dropped by
	// an unconfigured deployment.
	AllowDBDelete bool
}

// Mongo holds the connection parameters for the backing MongoDB cluster.
type Mongo struct {
	URI      string
	Database string
}

// Bind holds the HTTP listen address, default port 5984 to match CouchDB.
type Bind struct {
	Host string
	Port int
}

// JS holds the sandbox budgets described in spec §4.3. The values are
// loaded but not passed on by the serve command: every invocation runs
// with the sandbox's built-in budgets (100ms, 1M steps) and view builds
// use a worker pool of runtime.NumCPU().
type JS struct {
	Timeout        time.Duration
	MaxSteps       int64
	WorkerPoolSize int
}

// DesignRepo holds the filesystem layout and poll interval from spec §4.2/§6.
type DesignRepo struct {
	ViewsDir     string
	UpdatesDir   string
	PollInterval time.Duration
}

// Metrics holds the bind address for the Prometheus exporter. The serve
// command loads it but starts no listener on it.
type Metrics struct {
	Bind string
}

const envPrefix = "COUCHMONGO"

// BindFlags registers the serve command's flags and binds each one to a
// viper key, following cmd/serve.go's flags.String(...) + BindPFlag(...)
// pattern from the teacher.
func BindFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()

	flags.String("config", "", "path to a config file (YAML/JSON/TOML, viper-format)")
	flags.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "couchmongo", "MongoDB database holding the proxied collections")
	flags.String("bind-host", "0.0.0.0", "HTTP bind address")
	flags.Int("bind-port", 5984, "HTTP bind port")
	flags.Duration("js-timeout", 100*time.Millisecond, "wall-clock budget for a single map/reduce/update invocation (loaded, not applied: the sandbox uses its built-in 100ms)")
	flags.Int64("js-max-steps", 1_000_000, "bytecode step budget for a single map/reduce/update invocation (loaded, not applied: the sandbox uses its built-in 1M)")
	flags.Int("js-worker-pool-size", 0, "bounded worker pool size for view builds (loaded, not applied: the pool is always the number of CPUs)")
	flags.String("views-dir", "views", "filesystem root for map/reduce sources, views/<db>/<design>/<name>.{map,reduce}.js")
	flags.String("updates-dir", "updates", "filesystem root for update-function sources, updates/<db>/<design>/<name>.js")
	flags.Duration("designrepo-poll-interval", 30*time.Second, "mtime poll interval for hot-reloading design sources")
	flags.String("metrics-bind", "127.0.0.1:9090", "Prometheus metrics listen address (loaded, not applied: no metrics listener is started)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("allow-db-delete", false, "allow DELETE /{db} to drop a database; forbidden by default")

	for _, name := range []string{
		"mongo-uri", "mongo-database", "bind-host", "bind-port",
		"js-timeout", "js-max-steps", "js-worker-pool-size",
		"views-dir", "updates-dir", "designrepo-poll-interval",
		"metrics-bind", "log-level", "allow-db-delete",
	} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("config: bind flag %s: %w", name, err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	return nil
}

// Load reads the file named by path (if non-empty) and returns the
// resolved Config. Flags and environment variables always take precedence
// over file values, per viper's normal layering.
func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	poolSize := viper.GetInt("js-worker-pool-size")

	cfg := &Config{
		Mongo: Mongo{
			URI:      viper.GetString("mongo-uri"),
			Database: viper.GetString("mongo-database"),
		},
		Bind: Bind{
			Host: viper.GetString("bind-host"),
			Port: viper.GetInt("bind-port"),
		},
		JS: JS{
			Timeout:        viper.GetDuration("js-timeout"),
			MaxSteps:       viper.GetInt64("js-max-steps"),
			WorkerPoolSize: poolSize,
		},
		DesignRepo: DesignRepo{
			ViewsDir:     viper.GetString("views-dir"),
			UpdatesDir:   viper.GetString("updates-dir"),
			PollInterval: viper.GetDuration("designrepo-poll-interval"),
		},
		Metrics: Metrics{
			Bind: viper.GetString("metrics-bind"),
		},
		LogLevel:      viper.GetString("log-level"),
		AllowDBDelete: viper.GetBool("allow-db-delete"),
	}

	if cfg.Mongo.URI == "" {
		return nil, fmt.Errorf("config: mongo-uri is required")
	}
	if cfg.Mongo.Database == "" {
		return nil, fmt.Errorf("config: mongo-database is required")
	}
	return cfg, nil
}

// Addr returns the host:port HTTP listen address.
func (b Bind) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}
