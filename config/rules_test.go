package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
rules:
  - name: Bronze
    min: "0"
    max: "20"
    points: 5
    priority: 10
  - name: Gold
    min: "50.01"
    points: 30
  - name: Retired
    min: "0"
    points: 1
    inactive: true
`

func TestParseEarningRules(t *testing.T) {
	rules, err := ParseEarningRules([]byte(sampleRules))
	require.NoError(t, err)
	require.Len(t, rules, 3)

	assert.Equal(t, "Bronze", rules[0].Name)
	assert.True(t, rules[0].MaxOrderAmount.Valid)
	assert.True(t, rules[0].MaxOrderAmount.Decimal.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 10, rules[0].Priority)
	assert.True(t, rules[0].IsActive)

	assert.False(t, rules[1].MaxOrderAmount.Valid, "a rule without max is open-ended")
	assert.Equal(t, 100, rules[1].Priority)
	assert.True(t, rules[1].MinOrderAmount.Equal(decimal.RequireFromString("50.01")))

	assert.False(t, rules[2].IsActive)
}

func TestParseEarningRulesErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"Not YAML", "rules: [", "failed to parse"},
		{"Missing name", "rules:\n  - min: \"0\"\n    points: 1\n", "name is required"},
		{"No points", "rules:\n  - name: A\n    min: \"0\"\n", "points must be positive"},
		{"Bad min", "rules:\n  - name: A\n    min: lots\n    points: 1\n", "invalid min"},
		{"Bad max", "rules:\n  - name: A\n    min: \"0\"\n    max: lots\n    points: 1\n", "invalid max"},
		{"Max below min", "rules:\n  - name: A\n    min: \"10\"\n    max: \"5\"\n    points: 1\n", "max is below min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEarningRules([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEarningRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	rules, err := LoadEarningRules(path)
	require.NoError(t, err)
	assert.Len(t, rules, 3)

	_, err = LoadEarningRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read")
}
