package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "hospital_chat_service/cmd/chat_service/docs" // swagger 文件
	"hospital_chat_service/internal/chat/app"
	"hospital_chat_service/internal/chat/domain"
	"hospital_chat_service/internal/chat/repository"
	"hospital_chat_service/internal/chat/router"
	"hospital_chat_service/pkg/config"
	"hospital_chat_service/pkg/database"
	"hospital_chat_service/pkg/encrypt"
	"hospital_chat_service/pkg/logger"
	"hospital_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	defer logger.Log.Sync()

	cfg := config.LoadConfig[config.Chat](config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)

	// 1. 金鑰缺少時不可啟動
	codec, err := encrypt.NewCodec(config.EnvConfig.ChatEncryptionKey)
	if err != nil {
		logger.Log.Fatal("chat encryption key is not configured", zap.Error(err))
	}
	token.SetSecret(config.EnvConfig.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. PostgreSQL: gorm 建表 + 使用者, pgx 訊息
	sqlParams := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Host, cfg.PostgreSQL.Port, cfg.PostgreSQL.Database)
	pgConn := database.Connection{
		ConnectStr:    sqlParams,
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	gormDB, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL (gorm) after retries", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	if err := repository.Migrate(gormDB); err != nil {
		logger.Log.Fatal("migrate chat schema failed", zap.Error(err))
	}
	pool, err := database.NewDatabaseConnection(ctx, pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL after retries", zap.String("host", cfg.PostgreSQL.Host), zap.Error(err))
	}
	defer pool.Close()

	// 3. Mongo 稽核
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
	mongo, err := database.NewMongoDB(ctx,
		database.Connection{
			ConnectStr:    uri,
			RetryCount:    cfg.MongoSQL.RetryCount,
			RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
		},
		cfg.MongoSQL.Database)
	if err != nil {
		logger.Log.Fatal("Unable to connect to mongoDB database after retries", zap.String("host", cfg.MongoSQL.Host), zap.Error(err))
	}
	defer mongo.Close(context.Background())

	// 4. Redis 冪等
	masterName, sentinel := config.GetRedisSetting()
	redisClient, err := database.NewRedisClient(ctx, database.RedisConnection{
		MasterName:    masterName,
		SentinelAddrs: sentinel,
		Addr:          cfg.Redis.Addr,
		DB:            cfg.Redis.RedisDB,
	})
	if err != nil {
		logger.Log.Fatal("connect redis failed", zap.Error(err))
	}
	defer redisClient.Close()

	// 5. 頭像與離線通知
	avatars := newAvatarRepository(ctx, cfg.MinIO)
	notifier, err := newOfflineNotifier(ctx, cfg.Notify)
	if err != nil {
		logger.Log.Fatal("init offline notifier failed", zap.String("driver", cfg.Notify.Driver), zap.Error(err))
	}
	defer notifier.Close()

	// 6. Repository / UseCase / Gateway
	userRepo := repository.NewUserRepository(gormDB)
	presence := app.NewPresenceRegistry(userRepo)
	store := app.NewMessageStore(repository.NewMessageRepository(pool), codec)
	idem := repository.NewIdempotencyRepository(database.NewRedisRepository[domain.Message](redisClient), cfg.Redis.IdempotencyTTL)
	chatUC := app.NewChatUseCase(
		store,
		userRepo,
		idem,
		repository.NewAuditRepository(mongo.Database),
		avatars,
		notifier,
		presence,
		cfg.History,
	)
	gateway := app.NewGateway(chatUC, presence, cfg.Gateway)
	go gateway.RunReaper(ctx)

	// 7. 啟動 Fiber
	r := fiber.New()
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file,
	}))

	router.RegisterRoutes(r, gateway, app.NewChatHandler(chatUC, gateway))

	go func() {
		<-ctx.Done()
		logger.Log.Info("Chat Service shutting down")
		if err := r.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("shutdown failed", zap.Error(err))
		}
	}()

	port := ":" + firstNonEmpty(config.EnvConfig.ChatServicePort, cfg.Port)
	logger.Log.Info("Chat Service listening on " + port)
	if err := r.Listen(port); err != nil {
		logger.Log.Fatal("Failed to start Fiber", zap.Error(err))
	}
}

func newAvatarRepository(ctx context.Context, c config.MinIOConfig) repository.AvatarRepository {
	if !c.Enable {
		return repository.NewStaticAvatarRepository()
	}

	mc, err := database.NewMinIOConnection(ctx, database.MinIOConnection{
		Endpoint:      fmt.Sprintf("%s:%d", c.Host, c.Port),
		User:          c.User,
		Password:      c.Password,
		BucketName:    c.BucketName,
		UseSSL:        c.UseSSL,
		RetryCount:    c.RetryCount,
		RetryInterval: time.Duration(c.RetryInterval),
	})
	if err != nil {
		// 頭像不是聊天必要功能
		logger.Log.Warn("minIO unavailable, avatars served as stored", zap.Error(err))
		return repository.NewStaticAvatarRepository()
	}
	return repository.NewAvatarRepository(mc, c.PresignExpiry)
}

func newOfflineNotifier(ctx context.Context, c config.NotifyConfig) (repository.OfflineNotifier, error) {
	switch c.Driver {
	case "", "none":
		return repository.NewNoopNotifier(), nil

	case "rabbitmq":
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.IP, c.RabbitMQ.Port),
			RetryCount:    c.RabbitMQ.RetryCount,
			RetryInterval: time.Duration(c.RabbitMQ.RetryInterval),
		})
		if err != nil {
			return nil, err
		}
		ch, err := database.GetRabbitMQChannelWithRetry(conn, c.RabbitMQ.RetryCount, time.Duration(c.RabbitMQ.RetryInterval))
		if err != nil {
			return nil, err
		}
		return repository.NewRabbitNotifier(database.NewRabbitRepository(ch), c.RabbitMQ.Queue)

	case "kafka":
		writer, err := database.NewKafkaWriterWithRetry(ctx, database.KafkaConnection{
			Brokers:       c.Kafka.Brokers,
			Topic:         c.Kafka.Topic,
			RetryCount:    c.Kafka.RetryCount,
			RetryInterval: time.Duration(c.Kafka.RetryInterval),
		})
		if err != nil {
			return nil, err
		}
		return repository.NewKafkaNotifier(writer), nil

	default:
		return nil, errors.New("unknown notify driver " + c.Driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
