package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	assert.True(t, cfg.PostgresAutoMigrate)
	assert.Equal(t, 8, cfg.ListConcurrency)
	assert.Equal(t, "orders.events", cfg.KafkaEventsTopic)
	assert.Equal(t, "orders.fulfillment", cfg.KafkaFulfillmentTopic)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.Tracing.Enabled())
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing grpc address",
			mutate:  func(c *Config) { c.GRPCAddr = " " },
			wantErr: "grpc address is required",
		},
		{
			name:    "unknown storage driver",
			mutate:  func(c *Config) { c.StorageDriver = "sqlite" },
			wantErr: `unsupported storage driver "sqlite"`,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.StorageDriver = StorageDriverPostgres },
			wantErr: "postgres dsn is required",
		},
		{
			name:    "zero list concurrency",
			mutate:  func(c *Config) { c.ListConcurrency = 0 },
			wantErr: "list concurrency must be > 0",
		},
		{
			name:    "zero health check interval",
			mutate:  func(c *Config) { c.HealthCheckInterval = 0 },
			wantErr: "health check interval must be > 0",
		},
		{
			name: "kafka without events topic",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaEventsTopic = ""
			},
			wantErr: "kafka events topic is required",
		},
		{
			name: "kafka consumer without group",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.KafkaConsumerGroup = ""
			},
			wantErr: "kafka consumer group is required",
		},
		{
			name: "kafka with broken outbox settings",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.OutboxBatchSize = 0
			},
			wantErr: "outbox batch size must be > 0",
		},
		{
			name: "outbox retention without interval",
			mutate: func(c *Config) {
				c.KafkaBrokers = []string{"localhost:9092"}
				c.OutboxRetentionInterval = 0
			},
			wantErr: "outbox retention interval must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = ""
	cfg.MetricsAddr = ""
	cfg.AccountsTimeout = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grpc address")
	assert.Contains(t, err.Error(), "metrics address")
	assert.Contains(t, err.Error(), "accounts timeout")
}

func TestConfig_OutboxSettingsIgnoredWithoutKafka(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutboxBatchSize = 0
	cfg.OutboxPollInterval = 0

	require.NoError(t, cfg.Validate())
}
