package config

import (
	"fmt"
	"strings"

	"github.com/mkaneda/lotimport/internal/db"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Database    db.Config
	ListenAddr  string
	StorageRoot string
	Workers     int
	QueueSize   int
}

// Default returns the configuration used when no config file or environment
// overrides are present.
func Default() Config {
	return Config{
		Database:    db.DefaultConfig(),
		ListenAddr:  ":8080",
		StorageRoot: "./data/uploads",
		Workers:     4,
		QueueSize:   64,
	}
}

// Load reads config.yaml from configPath, applying environment overrides
// with the LOTIMPORT prefix (e.g. LOTIMPORT_DATABASE_HOST).
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("LOTIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.listen")
	v.BindEnv("storage.root")
	v.BindEnv("workers.count")
	v.BindEnv("workers.queue_size")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.listen") {
		cfg.ListenAddr = v.GetString("server.listen")
	}
	if v.IsSet("storage.root") {
		cfg.StorageRoot = v.GetString("storage.root")
	}
	if v.IsSet("workers.count") {
		cfg.Workers = v.GetInt("workers.count")
	}
	if v.IsSet("workers.queue_size") {
		cfg.QueueSize = v.GetInt("workers.queue_size")
	}

	return cfg, nil
}
