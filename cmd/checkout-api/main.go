package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cart"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/coupon"
	"github.com/fjod/go_checkout/internal/httpapi"
	"github.com/fjod/go_checkout/internal/metrics"
	"github.com/fjod/go_checkout/internal/money"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/pricing"
	"github.com/fjod/go_checkout/internal/session"
	"github.com/fjod/go_checkout/pkg/logger"
)

type Config struct {
	HTTPPort          string
	CartServiceURL    string
	CouponServiceURL  string
	OrderServiceURL   string
	PaymentBackendURL string
	ProcessorURL      string
	ProcessorAPIKey   string
	IdentityURL       string
	RedisAddr         string
	KafkaBrokers      string
	Currency          string
	TaxRateBP         int64
	ShippingFee       int64
	FreeShippingOver  int64
	SessionTTL        time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
	Debug             bool
}

func loadConfig() *Config {
	return &Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		CartServiceURL:    getEnv("CART_SERVICE_URL", "http://localhost:8081"),
		CouponServiceURL:  getEnv("COUPON_SERVICE_URL", "http://localhost:8082"),
		OrderServiceURL:   getEnv("ORDER_SERVICE_URL", "http://localhost:8083"),
		PaymentBackendURL: getEnv("PAYMENT_BACKEND_URL", "http://localhost:8084"),
		ProcessorURL:      getEnv("PROCESSOR_URL", "http://localhost:8085"),
		ProcessorAPIKey:   getEnv("PROCESSOR_API_KEY", ""),
		IdentityURL:       getEnv("IDENTITY_SERVICE_URL", "http://localhost:8086"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", "localhost:9092"),
		Currency:          getEnv("CURRENCY", "USD"),
		TaxRateBP:         getEnvInt64("TAX_RATE_BP", 800),
		ShippingFee:       getEnvInt64("SHIPPING_FEE", 500),
		FreeShippingOver:  getEnvInt64("FREE_SHIPPING_OVER", 5000),
		SessionTTL:        30 * time.Minute,
		RequestTimeout:    30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Debug:             getEnv("DEBUG", "") != "",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

// poolStores adapts the cart pool to the handler's store interface.
type poolStores struct {
	pool *cart.Pool
}

func (p poolStores) For(sessionKey string) httpapi.CartStore {
	return p.pool.For(sessionKey)
}

func main() {
	cfg := loadConfig()

	zlog, err := logger.New("checkout-api", cfg.Debug)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()
	zap.ReplaceGlobals(zlog)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		zlog.Warn("redis unreachable, cart snapshots disabled", zap.Error(err))
	}
	pingCancel()

	backendClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	cache := cart.NewRedisCache(redisClient)
	validator := coupon.NewHTTPValidator(cfg.CouponServiceURL, backendClient)
	orderClient := order.NewHTTPClient(cfg.OrderServiceURL, backendClient)
	intents := payment.NewHTTPIntentClient(cfg.PaymentBackendURL, backendClient)
	processor := payment.NewHTTPProcessor(cfg.ProcessorURL, cfg.ProcessorAPIKey, backendClient)
	coordinator := payment.NewCoordinator(intents, processor, zlog)
	identity := session.NewHTTPProvider(cfg.IdentityURL, backendClient)

	publisher := order.NewKafkaPublisher(cfg.KafkaBrokers)
	defer publisher.Close()

	shipping := pricing.FreeOverThreshold(money.Money(cfg.ShippingFee), money.Money(cfg.FreeShippingOver))
	tax := pricing.TaxPolicy{RateBasisPoints: cfg.TaxRateBP, Rounding: money.RoundHalfUp}

	pool := cart.NewPool(func(sessionKey string) *cart.Store {
		client := cart.NewHTTPClient(cfg.CartServiceURL, sessionKey, backendClient)
		return cart.NewStore(client, cache, validator, sessionKey, zlog)
	})

	registry := checkout.NewRegistry(cfg.SessionTTL, zlog)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go registry.Run(sweepCtx)

	begin := func(ctx context.Context, id session.Identity, sessionKey string) (*checkout.Machine, error) {
		store := pool.For(sessionKey)
		assembler := order.NewAssembler(orderClient, store, publisher, zlog)
		return checkout.Begin(ctx, checkout.Config{
			Carts:     store,
			Coupons:   validator,
			Payer:     coordinator,
			Assembler: assembler,
			Identity:  id,
			Shipping:  shipping,
			Tax:       tax,
			Currency:  cfg.Currency,
			Logger:    zlog,
		})
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	cartHandler := httpapi.NewCartHandler(poolStores{pool: pool}, shipping, tax, cfg.RequestTimeout, m, zlog)
	checkoutHandler := httpapi.NewCheckoutHandler(registry, begin, cfg.RequestTimeout, m, zlog)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(httpapi.RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httpapi.AuthMiddleware(identity))
		httpapi.Routes(r, cartHandler, checkoutHandler)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "checkout-api"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("checkout api starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Fatal("server forced to shutdown", zap.Error(err))
	}
	zlog.Info("server exited")
}
