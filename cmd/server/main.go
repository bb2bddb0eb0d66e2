// server runs the imaro-auth HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	"imaro-auth/backend/internal/config"
	"imaro-auth/backend/internal/db"
	healthhandler "imaro-auth/backend/internal/health/handler"
	identityhandler "imaro-auth/backend/internal/identity/handler"
	identityservice "imaro-auth/backend/internal/identity/service"
	"imaro-auth/backend/internal/identity/verifier"
	"imaro-auth/backend/internal/logger"
	"imaro-auth/backend/internal/otp"
	otpservice "imaro-auth/backend/internal/otp/service"
	"imaro-auth/backend/internal/otp/sms"
	"imaro-auth/backend/internal/otp/store"
	"imaro-auth/backend/internal/policy/engine"
	"imaro-auth/backend/internal/security"
	"imaro-auth/backend/internal/server"
	"imaro-auth/backend/internal/server/middleware"
	"imaro-auth/backend/internal/telemetry"
	telemetryotel "imaro-auth/backend/internal/telemetry/otel"
	"imaro-auth/backend/internal/telemetry/producer"
	userhandler "imaro-auth/backend/internal/user/handler"
	userrepo "imaro-auth/backend/internal/user/repository"
	userservice "imaro-auth/backend/internal/user/service"
)

const (
	serviceName        = "imaro-auth"
	grpcHealthInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.OTelServiceName,
		ServiceVersion: cfg.Version,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()
	users := userrepo.NewPostgresRepository(pool)

	checks := []healthhandler.Check{{Name: "database", Fn: pool.Ping}}

	var otpStore store.Store
	switch cfg.OTPStore {
	case "redis":
		rdb, err := db.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		otpStore = store.NewRedisStore(rdb, "", cfg.OTPMaxAttempts)
		checks = append(checks, healthhandler.Check{Name: "redis", Fn: redisPing(rdb)})
	default:
		otpStore = store.NewMemoryStore(cfg.OTPMaxAttempts)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}

	var generate otp.Generator
	if cfg.OTPFixedCode != "" {
		zl.Warn("OTP_FIXED_CODE is set; every issued code is the fixed value")
		generate = otp.FixedGenerator(cfg.OTPFixedCode)
	}
	issuer := otpservice.NewIssuer(
		otpStore,
		newSMSSender(cfg, zl),
		generate,
		otpservice.Options{TTL: cfg.OTPTTL, CodeLength: cfg.OTPLength},
		otpservice.NewMetrics(reg),
		zl,
	)

	tokens, err := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	var events telemetry.Fanout
	if providers.Enabled() {
		events = append(events, telemetryotel.NewEventEmitter(providers.LoggerProvider))
	}
	if kp := producer.New(cfg.KafkaBrokersList(), cfg.AuthEventsTopic); kp != nil {
		events = append(events, kp)
		defer func() {
			if err := kp.Close(); err != nil {
				zl.Warn("kafka producer close", zap.Error(err))
			}
		}()
	}

	if cfg.FirebaseProjectID == "" {
		zl.Info("FIREBASE_PROJECT_ID not set; Google login is disabled")
	}
	identities := verifier.NewFirebaseVerifier(cfg.FirebaseProjectID, cfg.IdentityJWKSURL, cfg.IdentityJWKSCacheTTL, nil)
	resolver := identityservice.NewResolver(issuer, identities, users, zl)
	auth := identityservice.NewAuthService(issuer, resolver, tokens, events, zl)
	profiles := userservice.NewProfileService(users, userservice.PolicyVersions{
		Privacy: cfg.PrivacyPolicyVersion,
		Terms:   cfg.TermsVersion,
	}, events, zl)

	policyModule, err := loadPolicy(cfg.AccessPolicyFile)
	if err != nil {
		return err
	}
	policy, err := engine.NewOPAEvaluator(ctx, policyModule)
	if err != nil {
		return err
	}
	checks = append(checks, healthhandler.Check{Name: "policy", Fn: policy.HealthCheck})

	router := server.NewRouter(server.RouterDeps{
		Production:     cfg.IsProduction(),
		AllowedOrigins: cfg.AllowedOriginsList(),
		Log:            zl,
		Tokens:         tokens,
		Users:          users,
		Policy:         policy,
		OTPLimiter:     middleware.NewRateLimiter(cfg.OTPRateLimitPerMinute),
		Metrics:        httpMetrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Auth:           identityhandler.NewAuthHandler(auth, zl),
		Profile:        userhandler.NewUserHandler(profiles, zl),
		Health:         healthhandler.NewHTTPHandler(serviceName, cfg.Version, checks...),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := server.NewGRPCServer(zl)
	healthSrv := health.NewServer()
	server.RegisterServices(grpcSrv, healthSrv)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		zl.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		healthhandler.NewGRPCReporter(healthSrv, zl, checks...).Run(gctx, grpcHealthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			zl.Warn("http shutdown", zap.Error(err))
		}
		grpcSrv.GracefulStop()

		// Let detached event emits finish before producers and providers close.
		time.Sleep(telemetry.ShutdownDrainDuration)
		if err := providers.Shutdown(shutdownCtx); err != nil {
			zl.Warn("otel shutdown", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// newSMSSender builds the configured provider, wrapped in a circuit breaker when enabled.
func newSMSSender(cfg *config.Config, zl *zap.Logger) sms.Sender {
	var sender sms.Sender
	switch cfg.SMSProvider {
	case "twilio":
		sender = sms.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, "")
	case "smslocal":
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	default:
		zl.Warn("SMS_PROVIDER=log; codes are written to the log instead of being delivered")
		return sms.NewLogSender(zl)
	}
	if !cfg.SMSBreakerEnabled {
		return sender
	}
	return sms.NewBreakerSender(cfg.SMSProvider, sender, sms.BreakerSettings{}, zl)
}

func loadPolicy(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read access policy: %w", err)
	}
	return string(b), nil
}

func redisPing(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
