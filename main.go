package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/photolabel/internal/classifier"
	"github.com/example/photolabel/internal/classifier/ollamaprov"
	"github.com/example/photolabel/internal/classifier/onnxprov"
	"github.com/example/photolabel/internal/config"
	"github.com/example/photolabel/internal/handlers"
	"github.com/example/photolabel/internal/logging"
	"github.com/example/photolabel/internal/session"
	"github.com/example/photolabel/internal/upload"
	"github.com/example/photolabel/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	spool, err := upload.NewSpool(cfg.SpoolDir, logger)
	if err != nil {
		logger.Fatal("failed to create upload spool", zap.Error(err))
	}

	provider := initProvider(cfg, logger)
	if closer, ok := provider.(interface{ Close() }); ok {
		defer closer.Close()
	}

	store, memStore := initStore(ctx, cfg, logger)
	uc := usecase.NewWorkflowUseCase(store, spool, provider, cfg.SessionTTL, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	if memStore != nil {
		memStore.OnEvict = uc.ReleaseSession
		go memStore.Janitor(bgCtx, time.Minute)
	}
	go sweepSpool(bgCtx, spool, cfg.SessionTTL)

	r := gin.Default()
	r.MaxMultipartMemory = handlers.MaxUploadSize

	handlers.RegisterRoutes(r, uc, handlers.Options{
		SessionSecret: cfg.SessionSecret,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
	})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	logger.Info("photolabel listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("provider", provider.Name()),
		zap.String("session_store", cfg.SessionStore))
	if err := serveHTTPServer(server, 15*time.Second, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initProvider(cfg *config.Config, logger *zap.Logger) classifier.Provider {
	switch cfg.Provider {
	case config.ProviderONNX:
		return onnxprov.New(cfg.OnnxModel, cfg.OnnxMeta, cfg.TopK, logger)
	default:
		provider, err := ollamaprov.New(cfg.OllamaURL, cfg.OllamaModel, cfg.TopK, logger)
		if err != nil {
			logger.Fatal("failed to build ollama provider", zap.Error(err))
		}
		return provider
	}
}

func initStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (session.Store, *session.MemoryStore) {
	if cfg.SessionStore == config.StoreRedis {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(redisCtx).Err(); err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		return session.NewRedisStore(client), nil
	}
	memStore := session.NewMemoryStore(logger)
	return memStore, memStore
}

// sweepSpool periodically removes spool files that outlived every
// session, covering redis-side TTL expiry where no eviction hook runs.
func sweepSpool(ctx context.Context, spool *upload.Spool, ttl time.Duration) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			spool.Sweep(2 * ttl)
		}
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
