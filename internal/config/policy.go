package config

import (
	"errors"
	"log"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AccessPolicy is the operator-tunable half of the engine: grace handling for
// delinquent accounts, quota warning thresholds, and retention windows. It is
// read from policy.yml and hot-reloaded, so support can flip the grace window
// without a deploy.
type AccessPolicy struct {
	PastDueGraceEnabled   bool      `mapstructure:"pastDueGraceEnabled"`
	PastDueGraceDays      int       `mapstructure:"pastDueGraceDays"`
	WarnThresholds        []float64 `mapstructure:"warnThresholds"`
	IncompleteMaxAgeHours int       `mapstructure:"incompleteMaxAgeHours"`
	EventRetentionDays    int       `mapstructure:"eventRetentionDays"`
	TrialReminderLeadDays int       `mapstructure:"trialReminderLeadDays"`
}

// DefaultAccessPolicy denies PAST_DUE immediately; grace is opt-in.
func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		PastDueGraceEnabled:   false,
		PastDueGraceDays:      0,
		WarnThresholds:        []float64{0.80, 0.90, 1.00},
		IncompleteMaxAgeHours: 24,
		EventRetentionDays:    90,
		TrialReminderLeadDays: 3,
	}
}

type PolicyHolder struct {
	current atomic.Value // holds AccessPolicy
}

type policyFile struct {
	Policy AccessPolicy `mapstructure:"policy"`
}

func NewPolicyHolder() (*PolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/listingcraft/config") // Volume-mounted config
	v.AddConfigPath("/etc/listingcraft")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("LISTINGCRAFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults are registered before reading so a sparse policy.yml layers
	// over them instead of zeroing the keys it omits.
	defaults := DefaultAccessPolicy()
	v.SetDefault("policy.pastDueGraceEnabled", defaults.PastDueGraceEnabled)
	v.SetDefault("policy.pastDueGraceDays", defaults.PastDueGraceDays)
	v.SetDefault("policy.warnThresholds", defaults.WarnThresholds)
	v.SetDefault("policy.incompleteMaxAgeHours", defaults.IncompleteMaxAgeHours)
	v.SetDefault("policy.eventRetentionDays", defaults.EventRetentionDays)
	v.SetDefault("policy.trialReminderLeadDays", defaults.TrialReminderLeadDays)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Unmarshal over AllSettings merges registered defaults with the file;
	// UnmarshalKey would hand back the file's sparse map as-is.
	var file policyFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, err
	}
	policy := file.Policy
	if err := validateAccessPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var reloaded policyFile
		if err := v.Unmarshal(&reloaded); err != nil {
			log.Printf("[policy] reload failed: %v", err)
			return
		}
		updated := reloaded.Policy
		if err := validateAccessPolicy(updated); err != nil {
			log.Printf("[policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPolicyHolder wraps a fixed policy, used by tests and callers that
// do not want file watching.
func NewStaticPolicyHolder(policy AccessPolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *PolicyHolder) Get() AccessPolicy {
	return h.current.Load().(AccessPolicy)
}

func (h *PolicyHolder) Store(policy AccessPolicy) {
	h.current.Store(policy)
}

func validateAccessPolicy(policy AccessPolicy) error {
	if policy.PastDueGraceEnabled && policy.PastDueGraceDays <= 0 {
		return errors.New("policy.pastDueGraceDays must be positive when grace is enabled")
	}
	if len(policy.WarnThresholds) == 0 {
		return errors.New("policy.warnThresholds cannot be empty")
	}
	if !sort.Float64sAreSorted(policy.WarnThresholds) {
		return errors.New("policy.warnThresholds must be ascending")
	}
	for _, threshold := range policy.WarnThresholds {
		if threshold <= 0 || threshold > 1 {
			return errors.New("policy.warnThresholds must be within (0, 1]")
		}
	}
	if policy.IncompleteMaxAgeHours <= 0 {
		return errors.New("policy.incompleteMaxAgeHours must be positive")
	}
	if policy.EventRetentionDays <= 0 {
		return errors.New("policy.eventRetentionDays must be positive")
	}
	if policy.TrialReminderLeadDays <= 0 {
		return errors.New("policy.trialReminderLeadDays must be positive")
	}
	return nil
}
