package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// TrackingModule provides the hot-reloadable tracking configuration.
var TrackingModule = fx.Provide(NewTrackingConfigHolder)

// TrackingConfigHolder serves the current tracking knobs and reloads them
// when tracking.yml changes on disk. The env-derived values from Config are
// the fallback when no file is present.
type TrackingConfigHolder struct {
	current atomic.Value // holds TrackingConfig
}

func NewTrackingConfigHolder(cfg Config) (*TrackingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("tracking")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/jobsift")
	v.AddConfigPath(".")

	v.SetEnvPrefix("JOBSIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := cfg.Tracking
	v.SetDefault("tracking.freshnessWindow", defaults.FreshnessWindow)
	v.SetDefault("tracking.evergreenThreshold", defaults.EvergreenThreshold)
	v.SetDefault("tracking.titleSimilarity", defaults.TitleSimilarity)
	v.SetDefault("tracking.batchTimeout", defaults.BatchTimeout)
	v.SetDefault("tracking.conflictRetries", defaults.ConflictRetries)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var tc TrackingConfig
	if err := v.UnmarshalKey("tracking", &tc); err != nil {
		return nil, err
	}
	if err := validateTrackingConfig(tc); err != nil {
		return nil, err
	}

	holder := &TrackingConfigHolder{}
	holder.current.Store(tc)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated TrackingConfig
		if err := v.UnmarshalKey("tracking", &updated); err != nil {
			log.Printf("[tracking-config] reload failed: %v", err)
			return
		}
		if err := validateTrackingConfig(updated); err != nil {
			log.Printf("[tracking-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

// Current returns the active tracking configuration.
func (h *TrackingConfigHolder) Current() TrackingConfig {
	return h.current.Load().(TrackingConfig)
}

// Store replaces the active configuration. Intended for tests.
func (h *TrackingConfigHolder) Store(tc TrackingConfig) {
	h.current.Store(tc)
}

func validateTrackingConfig(tc TrackingConfig) error {
	if tc.FreshnessWindow <= 0 {
		return errors.New("tracking: freshnessWindow must be positive")
	}
	if tc.EvergreenThreshold < 1 {
		return errors.New("tracking: evergreenThreshold must be at least 1")
	}
	if tc.TitleSimilarity < 0 || tc.TitleSimilarity > 1 {
		return errors.New("tracking: titleSimilarity must be between 0 and 1")
	}
	if tc.ConflictRetries < 1 {
		return errors.New("tracking: conflictRetries must be at least 1")
	}
	return nil
}
