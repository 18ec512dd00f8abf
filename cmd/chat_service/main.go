package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	_ "campus_chat_service/cmd/chat_service/docs" // 引入生成的 Swagger 文档
	"campus_chat_service/internal/chat/app"
	"campus_chat_service/internal/chat/repository"
	"campus_chat_service/internal/chat/router"
	"campus_chat_service/pkg/config"
	"campus_chat_service/pkg/database"
	"campus_chat_service/pkg/logger"
	"campus_chat_service/pkg/metrics"
	"campus_chat_service/pkg/token"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()
	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	token.SetSecret(cfg.JWTSecret)

	ctx := context.Background()

	// 1. 建立 Mongo 連線 (對話 / 訊息)
	uri := database.MongoURI(cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to mongoDB database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
			zap.Error(err),
		)
	}
	defer mongo.Close(ctx)

	if err := repository.EnsureIndexes(ctx, mongo.Database); err != nil {
		logger.Log.Fatal("ensure mongo indexes failed", zap.Error(err))
	}

	// 2. 建立 PostgreSQL 連線 (班級名冊 / 角色)
	pool, err := database.NewDatabaseConnection(database.Connection{
		ConnectStr:    database.PostgresURI(cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	})
	if err != nil {
		logger.Log.Fatal(
			"Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}
	defer pool.Close()

	// 3. 建立 Redis 連線 (Pub/Sub)
	redisClient, err := connectRedis(cfg.Redis)
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}
	defer redisClient.Close()

	// 4. MinIO 附件 (未設定 endpoint 則停用)
	var attachments repository.AttachmentRepository
	if cfg.MinIO.Endpoint != "" {
		minioClient, err := database.NewMinIOConnection(database.MinIOConnection{
			Endpoint:      cfg.MinIO.Endpoint,
			User:          cfg.MinIO.User,
			Password:      cfg.MinIO.Password,
			BucketName:    cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			RetryCount:    cfg.MinIO.RetryCount,
			RetryInterval: time.Duration(cfg.MinIO.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("Unable to connect to minio after retries", zap.String("endpoint", cfg.MinIO.Endpoint), zap.Error(err))
		}
		attachments = repository.NewMinIOAttachmentRepository(minioClient, cfg.MinIO.PresignExpiry)
	}

	// 5. Kafka event log (選用)
	var sinks []repository.EventSink
	if cfg.Kafka.Enabled {
		kafkaWriter, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			RetryCount:    cfg.Kafka.RetryCount,
			RetryInterval: time.Duration(cfg.Kafka.RetryInterval),
		})
		if err != nil {
			logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
		}
		defer kafkaWriter.Close()
		sinks = append(sinks, repository.NewKafkaEventLog(kafkaWriter))
	}

	// 6. 初始化 Repository / UseCases
	m := metrics.New()
	broker := repository.NewRedisPubSub(redisClient)
	defer broker.Close()
	fanout := app.NewFanout(broker, m, sinks...)

	convRepo := repository.NewMongoConversationRepository(mongo.Database)
	msgRepo := repository.NewMongoMessageRepository(mongo.Database)
	directory := repository.NewPostgresDirectoryRepository(pool)

	conversationUC := app.NewConversationUseCase(convRepo, msgRepo, directory, fanout, cfg.GroupNameMaxLength)
	messageUC := app.NewMessageUseCase(convRepo, msgRepo, conversationUC, fanout)

	// 7. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	router.RegisterRoutes(r,
		app.NewChatHTTPHandler(conversationUC, messageUC, attachments),
		app.NewChatWebsocketHandler(conversationUC, messageUC, fanout, m, cfg.Websocket.PingInterval),
		m,
		router.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst},
	)

	port := cfg.Port
	if port == "" {
		port = config.EnvConfig.ChatServicePort
	}
	logger.Log.Info("Chat Service listening", zap.String("port", port))
	if err := r.Listen(":" + port); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}

// connectRedis single node when addr is set, otherwise sentinel from .env
func connectRedis(c config.RedisConfig) (*redis.Client, error) {
	if c.Addr != "" {
		return database.NewRedisNodeClient(c.Addr, c.RedisDB)
	}
	masterName, sentinel := config.GetRedisSetting()
	return database.NewRedisClient(masterName, sentinel, c.RedisDB)
}
