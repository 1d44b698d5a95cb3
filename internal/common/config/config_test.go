package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("SERVICE_PORT", "9001")

	v, err := Load("payment")
	require.NoError(t, err)

	assert.Equal(t, ":9001", GetServicePort(v, "SERVICE_PORT"))
	assert.Equal(t, "development", GetAppEnv(v))
	assert.Equal(t, "payment_db", LoadDatabaseConfig(v, "DB_NAME").DBName)
	assert.Equal(t, 15*time.Minute, LoadJWTConfig(v).AccessTTL)

	kafka := LoadKafkaConfig(v)
	assert.True(t, kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, kafka.Brokers)
}
