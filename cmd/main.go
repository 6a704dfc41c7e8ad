/**
 * @description
 * This is the main entry point for the payment-relay-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the gateway client, the monitoring session registry,
 * the broadcast hub, the event relay, and the HTTP server. It wires everything
 * together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/hub, internal/monitor, internal/store: Internal packages for the service.
 * - pkg/gatewayclient: Client for the payment provider's QR API.
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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/qrpaylink/payment-relay-service/internal/api"
	"github.com/qrpaylink/payment-relay-service/internal/app"
	"github.com/qrpaylink/payment-relay-service/internal/config"
	"github.com/qrpaylink/payment-relay-service/internal/hub"
	"github.com/qrpaylink/payment-relay-service/internal/monitor"
	"github.com/qrpaylink/payment-relay-service/internal/store"
	"github.com/qrpaylink/payment-relay-service/pkg/gatewayclient"
	rmrabbit "github.com/qrpaylink/payment-relay-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.GatewayAPIBaseURL) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"gateway base url must be configured\" env=GATEWAY_API_BASE_URL")
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-relay-service\" port=%s sandbox=%t", cfg.ServerPort, cfg.SandboxMode)

	// Establish a connection pool to the PostgreSQL database. The audit sink
	// acquires a fresh connection per write, so the pool is the only shared
	// handle.
	var dbpool *pgxpool.Pool
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"database url missing; audit records disabled\" env=DATABASE_URL")
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 20
		poolConfig.MinConns = 2
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	// Initialize the RabbitMQ producer for terminal status events. The relay
	// only publishes, and a missing broker degrades to a no-op.
	var producer rmrabbit.Publisher
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; terminal event publishing disabled\" env=RABBITMQ_URL")
		producer = &rmrabbit.EventProducerFallback{}
	} else if p, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer p.Close()
		producer = p
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the client for the payment provider's QR API.
	gatewayClient := gatewayclient.NewClient(
		cfg.GatewayAPIBaseURL,
		cfg.GatewaySecretKey,
		cfg.GatewayMerchantCode,
		cfg.GatewayUsername,
		cfg.GatewayPassword,
	)

	var redisClient *redis.Client
	if cfg.QrRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; qr rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; qr rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; qr rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the monitoring session registry with the real stream dialer.
	registry := monitor.NewRegistry(
		&monitor.WebsocketDialer{},
		gatewayClient,
		time.Duration(cfg.MonitoringTimeoutSeconds)*time.Second,
	)

	// Initialize the broadcast hub and its websocket server.
	broadcastHub := hub.NewHub()
	wsServer := hub.NewServer(broadcastHub, cfg.AllowedOriginList())

	// Initialize the audit sink when a database is configured.
	var sink app.AuditSink
	if dbpool != nil {
		sink = app.NewStoreAuditSink(store.NewPostgresAuditRepository(dbpool))
	}

	// Wire the relay to the registry's event stream.
	relay := app.NewRelay(broadcastHub, sink, producer)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	go relay.Run(relayCtx, registry.Events())

	credentials := monitor.Credentials{
		SecretKey:    cfg.GatewaySecretKey,
		MerchantCode: cfg.GatewayMerchantCode,
		Username:     cfg.GatewayUsername,
		Password:     cfg.GatewayPassword,
		Sandbox:      cfg.SandboxMode,
	}

	// Initialize the API handlers and router.
	paymentHandlers := api.NewPaymentHandlers(gatewayClient, registry, credentials)
	if redisClient != nil {
		paymentHandlers.SetRateLimiter(
			app.NewRedisQrRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.QrRateLimitPerMinute,
		)
	}
	router := api.PaymentRoutes(paymentHandlers, wsServer.HandleWS, cfg.AllowedOriginList())

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
	stopRelay()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
