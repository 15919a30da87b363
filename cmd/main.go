/**
 * @description
 * This is the main entry point for the wallet-service. It is responsible for
 * initializing all components of the service, including configuration, database connection,
 * external API clients, message brokers, repositories, the core application service,
 * and the HTTP server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/paystackclient: Client for the Paystack API.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/centpay/wallet-service/internal/api"
	"github.com/centpay/wallet-service/internal/app"
	"github.com/centpay/wallet-service/internal/config"
	"github.com/centpay/wallet-service/internal/store"
	"github.com/centpay/wallet-service/pkg/paystackclient"
	rmrabbit "github.com/centpay/wallet-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	if strings.TrimSpace(cfg.PaystackSecretKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"paystack secret key must be configured\" env=PAYSTACK_SECRET_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting wallet-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for ledger events. A broker outage at
	// startup degrades to a no-op publisher; it never blocks the money path.
	var eventPublisher rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventPublisher = &rmrabbit.NoopPublisher{}
	} else {
		defer rabbitProducer.Close()
		eventPublisher = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the Paystack API.
	paystackClient := paystackclient.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)

	var redisClient *redis.Client
	rateLimitingEnabled := cfg.TransferRateLimitPerMinute > 0 || cfg.VerifyRateLimitPerMinute > 0
	if rateLimitingEnabled {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	limits := app.Limits{
		MinTransfer:             mustParseAmount(cfg.TransferMin, "TRANSFER_MIN"),
		MaxTransfer:             mustParseAmount(cfg.TransferMax, "TRANSFER_MAX"),
		TransferRatePerMinute:   cfg.TransferRateLimitPerMinute,
		VerifyPollRatePerMinute: cfg.VerifyRateLimitPerMinute,
	}

	// Initialize the core application service with its dependencies.
	walletService := app.NewService(
		repository,
		paystackClient,
		eventPublisher,
		limits,
		cfg.PaystackCallbackURL,
		cfg.LedgerEventExchange,
	)
	if redisClient != nil {
		walletService.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix))
	}

	// Initialize the API handlers.
	walletHandlers := api.NewWalletHandlers(walletService)
	webhookHandlers := api.NewWebhookHandlers(walletService, paystackClient, cfg.WebhookStrictSignature)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.WalletRoutes(walletHandlers, webhookHandlers, cfg.JWTSecret, cfg.AllowedOriginList()))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}

// mustParseAmount parses a configured bound; config validation already
// guarantees the value is a positive number.
func mustParseAmount(value, name string) decimal.Decimal {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid amount bound\" env=%s value=%q err=%v", name, value, err)
	}
	return parsed
}
