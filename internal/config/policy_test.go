package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultAccessPolicyDeniesPastDue(t *testing.T) {
	policy := DefaultAccessPolicy()
	require.False(t, policy.PastDueGraceEnabled)
	require.NoError(t, validateAccessPolicy(policy))
}

func TestValidateAccessPolicy(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AccessPolicy)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(p *AccessPolicy) {},
		},
		{
			name: "grace enabled requires positive days",
			mutate: func(p *AccessPolicy) {
				p.PastDueGraceEnabled = true
				p.PastDueGraceDays = 0
			},
			wantErr: true,
		},
		{
			name: "grace enabled with days",
			mutate: func(p *AccessPolicy) {
				p.PastDueGraceEnabled = true
				p.PastDueGraceDays = 7
			},
		},
		{
			name: "thresholds must not be empty",
			mutate: func(p *AccessPolicy) {
				p.WarnThresholds = nil
			},
			wantErr: true,
		},
		{
			name: "thresholds must be ascending",
			mutate: func(p *AccessPolicy) {
				p.WarnThresholds = []float64{0.9, 0.8}
			},
			wantErr: true,
		},
		{
			name: "thresholds above one rejected",
			mutate: func(p *AccessPolicy) {
				p.WarnThresholds = []float64{0.8, 1.5}
			},
			wantErr: true,
		},
		{
			name: "retention must be positive",
			mutate: func(p *AccessPolicy) {
				p.EventRetentionDays = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := DefaultAccessPolicy()
			tt.mutate(&policy)
			err := validateAccessPolicy(policy)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewPolicyHolderWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPolicyHolder()
	require.NoError(t, err)
	require.Equal(t, DefaultAccessPolicy(), holder.Get())
}

func TestNewPolicyHolderLayersSparseFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := "policy:\n  pastDueGraceEnabled: true\n  pastDueGraceDays: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policy.yml"), []byte(partial), 0o644))
	t.Chdir(dir)

	holder, err := NewPolicyHolder()
	require.NoError(t, err)

	policy := holder.Get()
	require.True(t, policy.PastDueGraceEnabled)
	require.Equal(t, 7, policy.PastDueGraceDays)

	defaults := DefaultAccessPolicy()
	require.Equal(t, defaults.WarnThresholds, policy.WarnThresholds)
	require.Equal(t, defaults.IncompleteMaxAgeHours, policy.IncompleteMaxAgeHours)
	require.Equal(t, defaults.EventRetentionDays, policy.EventRetentionDays)
	require.Equal(t, defaults.TrialReminderLeadDays, policy.TrialReminderLeadDays)
}

func TestPolicyHolderStoreAndGet(t *testing.T) {
	holder := NewStaticPolicyHolder(DefaultAccessPolicy())
	require.False(t, holder.Get().PastDueGraceEnabled)

	updated := DefaultAccessPolicy()
	updated.PastDueGraceEnabled = true
	updated.PastDueGraceDays = 5
	holder.Store(updated)

	require.True(t, holder.Get().PastDueGraceEnabled)
	require.Equal(t, 5, holder.Get().PastDueGraceDays)
}
