package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DeleteModeFiles  = "files"
	DeleteModeFolder = "folder"
)

// SagaConfig tunes the remote-file saga. Every field may change at runtime.
type SagaConfig struct {
	Retry    RetryConfig    `mapstructure:"retry"`
	Deletion DeletionConfig `mapstructure:"deletion"`
	Metadata MetadataConfig `mapstructure:"metadata"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	BaseDelay   time.Duration `mapstructure:"baseDelay"`
}

type DeletionConfig struct {
	Mode        string `mapstructure:"mode"`
	Concurrency int    `mapstructure:"concurrency"`
}

type MetadataConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

func DefaultSagaConfig() SagaConfig {
	return SagaConfig{
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
		},
		Deletion: DeletionConfig{
			Mode:        DeleteModeFiles,
			Concurrency: 4,
		},
		Metadata: MetadataConfig{
			CacheTTL: 30 * time.Second,
		},
	}
}

type SagaConfigHolder struct {
	current atomic.Value // holds SagaConfig
}

// NewStaticSagaConfigHolder returns a holder that never reloads.
func NewStaticSagaConfigHolder(cfg SagaConfig) *SagaConfigHolder {
	holder := &SagaConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewSagaConfigHolder reads saga.yml from the usual locations and watches it
// for changes. A missing file falls back to DefaultSagaConfig.
func NewSagaConfigHolder(log *zap.Logger) (*SagaConfigHolder, error) {
	v := viper.New()
	v.SetConfigName("saga")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/marketplace")
	v.AddConfigPath(".")
	return newSagaConfigHolder(v, log)
}

// NewSagaConfigHolderFromFile is NewSagaConfigHolder pinned to a single file.
func NewSagaConfigHolderFromFile(path string, log *zap.Logger) (*SagaConfigHolder, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return newSagaConfigHolder(v, log)
}

func newSagaConfigHolder(v *viper.Viper, log *zap.Logger) (*SagaConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("saga.config")

	v.SetEnvPrefix("MARKETPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSagaConfig()
	v.SetDefault("saga.retry.maxAttempts", defaults.Retry.MaxAttempts)
	v.SetDefault("saga.retry.baseDelay", defaults.Retry.BaseDelay)
	v.SetDefault("saga.deletion.mode", defaults.Deletion.Mode)
	v.SetDefault("saga.deletion.concurrency", defaults.Deletion.Concurrency)
	v.SetDefault("saga.metadata.cacheTTL", defaults.Metadata.CacheTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeSagaConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSagaConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSagaConfig(v)
		if err != nil {
			log.Warn("invalid saga config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("saga config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SagaConfigHolder) Get() SagaConfig {
	return h.current.Load().(SagaConfig)
}

func decodeSagaConfig(v *viper.Viper) (SagaConfig, error) {
	var cfg SagaConfig
	if err := v.UnmarshalKey("saga", &cfg); err != nil {
		return SagaConfig{}, err
	}
	cfg.Deletion.Mode = strings.ToLower(strings.TrimSpace(cfg.Deletion.Mode))
	if err := validateSagaConfig(cfg); err != nil {
		return SagaConfig{}, err
	}
	return cfg, nil
}

func validateSagaConfig(cfg SagaConfig) error {
	if cfg.Retry.MaxAttempts < 1 {
		return errors.New("saga.retry.maxAttempts must be at least 1")
	}
	if cfg.Retry.BaseDelay < 0 {
		return errors.New("saga.retry.baseDelay cannot be negative")
	}
	switch cfg.Deletion.Mode {
	case DeleteModeFiles, DeleteModeFolder:
	default:
		return fmt.Errorf("saga.deletion.mode %q is not one of %q, %q", cfg.Deletion.Mode, DeleteModeFiles, DeleteModeFolder)
	}
	if cfg.Deletion.Concurrency < 1 {
		return errors.New("saga.deletion.concurrency must be at least 1")
	}
	return nil
}
