package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatYAML = `
port: "8083"
jwt_secret: ${TEST_CHAT_JWT_SECRET}
group_name_max_length: 25
mongo:
  host: ${TEST_CHAT_MONGO_HOST}
  port: 27017
  database: chat
  retry_count: 3
  retry_interval: 2
redis:
  addr: localhost:6379
  redis_db: 1
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
  topic: chat-events
rate_limit:
  rps: 5
  burst: 10
websocket:
  ping_interval: 30s
minio:
  bucket: chat
  presign_expiry: 10m
`

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chat_service.yaml"), []byte(chatYAML), 0644))
	t.Setenv("TEST_CHAT_JWT_SECRET", "s3cret")
	t.Setenv("TEST_CHAT_MONGO_HOST", "mongo.internal")

	cfg, err := ReadConfig[Chat]("chat_service", dir)
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "mongo.internal", cfg.MongoSQL.Host)
	assert.Equal(t, 27017, cfg.MongoSQL.Port)
	assert.Equal(t, 3, cfg.MongoSQL.RetryCount)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.RedisDB)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 30*time.Second, cfg.Websocket.PingInterval)
	assert.Equal(t, 10*time.Minute, cfg.MinIO.PresignExpiry)
}

func TestReadConfig_MissingFile(t *testing.T) {
	_, err := ReadConfig[Chat]("chat_service", t.TempDir())
	assert.Error(t, err)
}

func TestGetRedisSetting(t *testing.T) {
	t.Setenv("REDIS_MASTER_NAME", "chat-master")
	t.Setenv("REDIS_SENTINEL1_IP", "10.0.0.1")
	t.Setenv("REDIS_SENTINEL1_PORT", "26379")
	t.Setenv("REDIS_SENTINEL2_IP", "10.0.0.2")
	t.Setenv("REDIS_SENTINEL2_PORT", "26380")

	master, sentinels := GetRedisSetting()
	sort.Strings(sentinels)
	assert.Equal(t, "chat-master", master)
	assert.Equal(t, []string{"10.0.0.1:26379", "10.0.0.2:26380"}, sentinels)
}
