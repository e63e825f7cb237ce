package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncConfig controls outbound calls to the payment authority.
type SyncConfig struct {
	BaseURL  string        `mapstructure:"baseURL"`
	Timeout  time.Duration `mapstructure:"timeout"`
	UserID   string        `mapstructure:"userID"`
	UserType string        `mapstructure:"userType"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		BaseURL:  "http://localhost:8022",
		Timeout:  10 * time.Second,
		UserID:   "chargeback-service",
		UserType: "service",
	}
}

type SyncConfigHolder struct {
	current atomic.Value // holds SyncConfig
}

// NewStaticSyncConfigHolder returns a holder that never reloads.
func NewStaticSyncConfigHolder(cfg SyncConfig) *SyncConfigHolder {
	holder := &SyncConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("chargeback")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/chargeback")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CHARGEBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncConfig()
	v.SetDefault("remote.baseURL", defaults.BaseURL)
	v.SetDefault("remote.timeout", defaults.Timeout)
	v.SetDefault("remote.userID", defaults.UserID)
	v.SetDefault("remote.userType", defaults.UserType)

	found := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		found = false
	}

	var cfg SyncConfig
	if err := v.UnmarshalKey("remote", &cfg); err != nil {
		return nil, err
	}
	if err := validateSyncConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticSyncConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncConfig
		if err := v.UnmarshalKey("remote", &updated); err != nil {
			log.Printf("[chargeback-config] reload failed: %v", err)
			return
		}
		if err := validateSyncConfig(updated); err != nil {
			log.Printf("[chargeback-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[chargeback-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *SyncConfigHolder) Get() SyncConfig {
	return h.current.Load().(SyncConfig)
}

func validateSyncConfig(cfg SyncConfig) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return errors.New("remote.baseURL cannot be empty")
	}
	if cfg.Timeout <= 0 {
		return errors.New("remote.timeout must be positive")
	}
	return nil
}
