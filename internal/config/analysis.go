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
	GranularityWeek  = "week"
	GranularityMonth = "month"

	AmountPolicyLifetime = "lifetime"
	AmountPolicyWindow   = "window"
)

// AnalysisPolicy controls how the segmentation sweep builds its features.
type AnalysisPolicy struct {
	Granularity         string        `mapstructure:"granularity"`
	WindowCount         int           `mapstructure:"windowCount"`
	AmountPolicy        string        `mapstructure:"amountPolicy"`
	NoVisitSentinelDays int           `mapstructure:"noVisitSentinelDays"`
	Timezone            string        `mapstructure:"timezone"`
	SummaryCacheTTL     time.Duration `mapstructure:"summaryCacheTTL"`
}

func DefaultAnalysisPolicy() AnalysisPolicy {
	return AnalysisPolicy{
		Granularity:         GranularityMonth,
		WindowCount:         6,
		AmountPolicy:        AmountPolicyLifetime,
		NoVisitSentinelDays: 9999,
		Timezone:            "UTC",
		SummaryCacheTTL:     time.Minute,
	}
}

// Location resolves the policy timezone, falling back to UTC.
func (p AnalysisPolicy) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(p.Timezone))
	if err != nil || strings.TrimSpace(p.Timezone) == "" {
		return time.UTC
	}
	return loc
}

type AnalysisPolicyHolder struct {
	current atomic.Value // holds AnalysisPolicy
}

// NewStaticAnalysisPolicyHolder returns a holder that never reloads.
func NewStaticAnalysisPolicyHolder(policy AnalysisPolicy) *AnalysisPolicyHolder {
	holder := &AnalysisPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewAnalysisPolicyHolder(log *zap.Logger) (*AnalysisPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.analysis")

	v := viper.New()

	v.SetConfigName("analysis")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/storepulse/config")
	v.AddConfigPath("/etc/storepulse")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STOREPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAnalysisPolicy()
	v.SetDefault("analysis.granularity", defaults.Granularity)
	v.SetDefault("analysis.windowCount", defaults.WindowCount)
	v.SetDefault("analysis.amountPolicy", defaults.AmountPolicy)
	v.SetDefault("analysis.noVisitSentinelDays", defaults.NoVisitSentinelDays)
	v.SetDefault("analysis.timezone", defaults.Timezone)
	v.SetDefault("analysis.summaryCacheTTL", defaults.SummaryCacheTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var policy AnalysisPolicy
	if err := v.UnmarshalKey("analysis", &policy); err != nil {
		return nil, err
	}
	policy = normalizeAnalysisPolicy(policy)
	if err := validateAnalysisPolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticAnalysisPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AnalysisPolicy
		if err := v.UnmarshalKey("analysis", &updated); err != nil {
			log.Warn("config.analysis.reload_failed", zap.Error(err))
			return
		}
		updated = normalizeAnalysisPolicy(updated)
		if err := validateAnalysisPolicy(updated); err != nil {
			log.Warn("config.analysis.invalid_ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("config.analysis.reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *AnalysisPolicyHolder) Get() AnalysisPolicy {
	if h == nil {
		return DefaultAnalysisPolicy()
	}
	policy, ok := h.current.Load().(AnalysisPolicy)
	if !ok {
		return DefaultAnalysisPolicy()
	}
	return policy
}

func normalizeAnalysisPolicy(p AnalysisPolicy) AnalysisPolicy {
	p.Granularity = strings.ToLower(strings.TrimSpace(p.Granularity))
	p.AmountPolicy = strings.ToLower(strings.TrimSpace(p.AmountPolicy))
	p.Timezone = strings.TrimSpace(p.Timezone)
	return p
}

func validateAnalysisPolicy(p AnalysisPolicy) error {
	switch p.Granularity {
	case GranularityWeek, GranularityMonth:
	default:
		return fmt.Errorf("analysis.granularity %q is not supported", p.Granularity)
	}
	if p.WindowCount <= 0 {
		return errors.New("analysis.windowCount must be positive")
	}
	switch p.AmountPolicy {
	case AmountPolicyLifetime, AmountPolicyWindow:
	default:
		return fmt.Errorf("analysis.amountPolicy %q is not supported", p.AmountPolicy)
	}
	if p.NoVisitSentinelDays < 0 {
		return errors.New("analysis.noVisitSentinelDays cannot be negative")
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("analysis.timezone: %w", err)
		}
	}
	return nil
}
