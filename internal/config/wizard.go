package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WizardConfig tunes the AI wizards. It lives in wizard.yml and is reloaded while the process runs.
type WizardConfig struct {
	ChunkSize     int               `mapstructure:"chunkSize"`
	RatePerMinute int               `mapstructure:"ratePerMinute"`
	Burst         int               `mapstructure:"burst"`
	MaxDrafts     int               `mapstructure:"maxDrafts"`
	ContextLimit  int               `mapstructure:"contextLimit"`
	Models        map[string]string `mapstructure:"models"`
}

func DefaultWizardConfig() WizardConfig {
	return WizardConfig{
		ChunkSize:     400,
		RatePerMinute: 10,
		Burst:         3,
		MaxDrafts:     50,
		ContextLimit:  200,
		Models:        map[string]string{},
	}
}

// ModelFor returns the per-kind model override or fallback.
func (c WizardConfig) ModelFor(kind, fallback string) string {
	if model := strings.TrimSpace(c.Models[kind]); model != "" {
		return model
	}
	return fallback
}

type WizardConfigHolder struct {
	current atomic.Value // holds WizardConfig
}

// NewStaticWizardConfigHolder pins a config without watching files.
func NewStaticWizardConfigHolder(cfg WizardConfig) *WizardConfigHolder {
	holder := &WizardConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewWizardConfigHolder() (*WizardConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("wizard")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/storeadmin/config")
	v.AddConfigPath("/etc/storeadmin")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultWizardConfig()
	v.SetDefault("wizard.chunkSize", defaults.ChunkSize)
	v.SetDefault("wizard.ratePerMinute", defaults.RatePerMinute)
	v.SetDefault("wizard.burst", defaults.Burst)
	v.SetDefault("wizard.maxDrafts", defaults.MaxDrafts)
	v.SetDefault("wizard.contextLimit", defaults.ContextLimit)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg WizardConfig
	if err := v.UnmarshalKey("wizard", &cfg); err != nil {
		return nil, err
	}
	if err := validateWizardConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticWizardConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated WizardConfig
		if err := v.UnmarshalKey("wizard", &updated); err != nil {
			log.Printf("[wizard-config] reload failed: %v", err)
			return
		}
		if err := validateWizardConfig(updated); err != nil {
			log.Printf("[wizard-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[wizard-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *WizardConfigHolder) Get() WizardConfig {
	return h.current.Load().(WizardConfig)
}

func validateWizardConfig(cfg WizardConfig) error {
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > 500 {
		return fmt.Errorf("wizard.chunkSize must be within 1..500, got %d", cfg.ChunkSize)
	}
	if cfg.RatePerMinute <= 0 {
		return errors.New("wizard.ratePerMinute must be positive")
	}
	if cfg.Burst <= 0 {
		return errors.New("wizard.burst must be positive")
	}
	if cfg.MaxDrafts <= 0 {
		return errors.New("wizard.maxDrafts must be positive")
	}
	return nil
}
