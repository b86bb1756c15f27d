package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the typed view of config.yaml.
type Config struct {
	Relay   RelayConfig   `mapstructure:"relay"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type RelayConfig struct {
	Name          string `mapstructure:"name"`
	Description   string `mapstructure:"description"`
	Contact       string `mapstructure:"contact"`
	PrivateKey    string `mapstructure:"private_key"` // nsec, generated on first run if empty
	QueueCapacity int    `mapstructure:"queue_capacity"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	DataPath string `mapstructure:"data_path"`
	Memory   bool   `mapstructure:"memory"` // run on the in-memory store (no persistence)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

var (
	// Cache the configuration after first load
	cachedConfig    atomic.Value // stores *Config
	configLoadOnce  sync.Once
	configLoadError error

	// Only protect write operations
	writeMutex sync.Mutex

	// Debounce timer for config file changes
	debounceTimer *time.Timer
	debounceMutex sync.Mutex
)

func setDefaults() {
	viper.SetDefault("relay.name", "crystal relay")
	viper.SetDefault("relay.description", "a nostr relay")
	viper.SetDefault("relay.contact", "")
	viper.SetDefault("relay.private_key", "")
	viper.SetDefault("relay.queue_capacity", 100)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.data_path", "./data")
	viper.SetDefault("server.memory", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.output", "stdout")
}

// InitConfig initializes the global viper configuration
func InitConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variable settings
	viper.SetEnvPrefix("CRYSTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create it with defaults
			if err := viper.WriteConfigAs("config.yaml"); err != nil {
				return fmt.Errorf("failed to create default config: %w", err)
			}
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read created config: %w", err)
			}
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Load initial configuration into cache
	if err := reloadConfigCache(); err != nil {
		return fmt.Errorf("failed to load initial config: %w", err)
	}

	// Watch for config file changes with debouncing
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Debounce file changes to avoid reading partial writes on slower machines
		debounceMutex.Lock()
		defer debounceMutex.Unlock()

		if debounceTimer != nil {
			debounceTimer.Stop()
		}

		debounceTimer = time.AfterFunc(500*time.Millisecond, func() {
			log.Printf("Config file changed (debounced): %s", e.Name)
			writeMutex.Lock()
			defer writeMutex.Unlock()

			if err := reloadConfigCache(); err != nil {
				log.Printf("Error reloading config cache after file change: %v", err)
			}
		})
	})

	return nil
}

// reloadConfigCache loads the configuration from viper into the cache
func reloadConfigCache() error {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cachedConfig.Store(config)
	return nil
}

// GetConfig returns the cached configuration struct.
// Reads only touch an atomic.Value, so this is safe on hot paths.
func GetConfig() (*Config, error) {
	if cfg := cachedConfig.Load(); cfg != nil {
		return cfg.(*Config), nil
	}

	configLoadOnce.Do(func() {
		configLoadError = reloadConfigCache()
	})

	if configLoadError != nil {
		return nil, configLoadError
	}

	cfg := cachedConfig.Load()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	return cfg.(*Config), nil
}

// GetPort returns the websocket listen port
func GetPort() int {
	cfg, err := GetConfig()
	if err != nil || cfg.Server.Port == 0 {
		return 8080 // fallback
	}
	return cfg.Server.Port
}

// GetQueueCapacity returns the per-subscription delivery queue size
func GetQueueCapacity() int {
	cfg, err := GetConfig()
	if err != nil || cfg.Relay.QueueCapacity <= 0 {
		return 100 // fallback
	}
	return cfg.Relay.QueueCapacity
}

// GetDataDir returns the data directory path
func GetDataDir() string {
	cfg, err := GetConfig()
	if err != nil || cfg.Server.DataPath == "" {
		return "./data" // fallback
	}
	return cfg.Server.DataPath
}

// GetPath returns a path relative to the data directory
func GetPath(subPath string) string {
	return filepath.Join(GetDataDir(), subPath)
}

// SaveConfig saves the current configuration to file
func SaveConfig() error {
	writeMutex.Lock()
	defer writeMutex.Unlock()

	if err := viper.WriteConfig(); err != nil {
		return err
	}

	return reloadConfigCache()
}

// UpdateConfig updates a configuration value and optionally saves it
func UpdateConfig(key string, value interface{}, save bool) error {
	writeMutex.Lock()
	defer writeMutex.Unlock()

	viper.Set(key, value)

	if save {
		if err := viper.WriteConfig(); err != nil {
			return err
		}
	}

	return reloadConfigCache()
}
