package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"

	"rosa-canvas-server/modules/common/config"
	"rosa-canvas-server/modules/common/inject"
	"rosa-canvas-server/modules/common/logger"
	"rosa-canvas-server/modules/common/middleware"
	"rosa-canvas-server/modules/rose"
)

const serviceName = "rosa-canvas-server"

// newRouter - 라우터 + 미들웨어 구성
func newRouter(cfg *config.Config, log zerolog.Logger, handler *rose.Handler, registry *rose.Registry) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.RequestID(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// CORS preflight는 모든 경로에서 받음 (미들웨어는 매칭된 라우트에서만 실행됨)
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/metrics", getMetrics(registry)).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupSessions(registry)).Methods("POST")
	handler.RegisterRoutes(r)

	return r
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(registry *rose.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics := registry.Metrics()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"server": map[string]interface{}{
				"uptime":    time.Since(metrics.StartTime).String(),
				"startTime": metrics.StartTime,
			},
			"sessions": metrics,
		})
	}
}

// 만료 세션 즉시 정리 (관리자용)
func forceCleanupSessions(registry *rose.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed := registry.Sweep()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "Cleanup completed",
			"removed": removed,
		})
	}
}

func main() {
	log := logger.New(os.Getenv("APP_ENV"))

	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	log = logger.New(cfg.AppEnv)
	log.Info().Msgf("✅ Configuration loaded (Gemini: %s, locale: %s, timeout: %s)",
		cfg.GeminiModel, cfg.DefaultLocale, cfg.GenerationTimeout)

	// SIGTERM 시 진행 중인 원격 호출도 함께 취소
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	injector := inject.Setup(ctx, cfg, log)
	registry := do.MustInvoke[*rose.Registry](injector)
	handler := do.MustInvoke[*rose.Handler](injector)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg, log, handler, registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("🚀 Rosa Canvas Server starting on port %s", cfg.Port)
		log.Info().Msgf("📡 WebSocket endpoint: ws://localhost:%s%s", cfg.Port, rose.WebSocketPath)
		log.Info().Msgf("❤️  Health check: http://localhost:%s/health", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx, cfg.SessionSweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("🛑 Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("❌ Server stopped with error")
	}
	if err := injector.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Injector shutdown failed")
	}
}
