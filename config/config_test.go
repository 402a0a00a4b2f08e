package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func validConfig() *Config {
	return &Config{
		DatabaseURL: "sqlite::memory:",
		Engine: EngineConfig{
			TaxRate:              decimal.RequireFromString("0.08"),
			TaxPolicy:            "pre_discount",
			DeliveryFee:          decimal.RequireFromString("5.00"),
			PointsConversionRate: decimal.RequireFromString("0.10"),
			OverpaymentPolicy:    "clamp",
			RetryMaxAttempts:     3,
		},
		Notifier: NotifierConfig{Kind: "log"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"Valid", func(c *Config) {}, ""},
		{"Missing database URL", func(c *Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"Negative tax rate", func(c *Config) { c.Engine.TaxRate = decimal.RequireFromString("-0.01") }, "TAX_RATE"},
		{"Negative delivery fee", func(c *Config) { c.Engine.DeliveryFee = decimal.RequireFromString("-1") }, "DELIVERY_FEE"},
		{"Zero conversion rate", func(c *Config) { c.Engine.PointsConversionRate = decimal.Zero }, "POINTS_CONVERSION_RATE"},
		{"Unknown tax policy", func(c *Config) { c.Engine.TaxPolicy = "never" }, "TAX_POLICY"},
		{"Unknown overpayment policy", func(c *Config) { c.Engine.OverpaymentPolicy = "keep" }, "OVERPAYMENT_POLICY"},
		{"Unknown notifier", func(c *Config) { c.Notifier.Kind = "smoke-signal" }, "NOTIFIER"},
		{"No attempts", func(c *Config) { c.Engine.RetryMaxAttempts = 0 }, "RETRY_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEngineConfigDefaults(t *testing.T) {
	for _, key := range []string{"TAX_RATE", "TAX_POLICY", "DELIVERY_FEE", "POINTS_CONVERSION_RATE", "OVERPAYMENT_POLICY", "REJECT_INVALID_PROMO", "RETRY_MAX_ATTEMPTS", "RETRY_BACKOFF_MS", "SNOWFLAKE_NODE"} {
		t.Setenv(key, "")
	}

	engine, err := loadEngineConfig()
	require.NoError(t, err)
	assert.True(t, engine.TaxRate.Equal(decimal.RequireFromString("0.08")))
	assert.True(t, engine.DeliveryFee.Equal(decimal.RequireFromString("5")))
	assert.True(t, engine.PointsConversionRate.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, "pre_discount", engine.TaxPolicy)
	assert.Equal(t, "clamp", engine.OverpaymentPolicy)
	assert.True(t, engine.RejectInvalidPromo)
	assert.Equal(t, 3, engine.RetryMaxAttempts)
	assert.Equal(t, int64(1), engine.SnowflakeNode)
}

func TestLoadEngineConfigFromEnvironment(t *testing.T) {
	t.Setenv("TAX_RATE", "0.2")
	t.Setenv("TAX_POLICY", "post_discount")
	t.Setenv("OVERPAYMENT_POLICY", "reject")
	t.Setenv("REJECT_INVALID_PROMO", "false")
	t.Setenv("RETRY_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("SNOWFLAKE_NODE", "12")

	engine, err := loadEngineConfig()
	require.NoError(t, err)
	assert.True(t, engine.TaxRate.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, "post_discount", engine.TaxPolicy)
	assert.Equal(t, "reject", engine.OverpaymentPolicy)
	assert.False(t, engine.RejectInvalidPromo)
	assert.Equal(t, 3, engine.RetryMaxAttempts, "invalid integers fall back to the default")
	assert.Equal(t, int64(12), engine.SnowflakeNode)

	t.Setenv("DELIVERY_FEE", "five")
	_, err = loadEngineConfig()
	assert.ErrorContains(t, err, "DELIVERY_FEE")
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitAndTrim(" a:9092 , ,b:9092"))
	assert.Empty(t, splitAndTrim(""))
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{GoEnv: "production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())

	cfg.GoEnv = "test"
	assert.True(t, cfg.IsTest())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = NewLogger("development", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("development", "loud")
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	logger := zap.NewExample()
	SetLogger(logger)
	assert.Same(t, logger, GetLogger())

	SetLogger(nil)
	assert.NotNil(t, GetLogger())
}
