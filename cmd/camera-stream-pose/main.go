package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi"

	"webcam-streamer/configs"
	"webcam-streamer/internal"
	"webcam-streamer/internal/session"

	_ "github.com/joho/godotenv/autoload"
)

func main() {
	envs := configs.MustConfig()
	detectorEnvs := configs.MustConfigDetectors()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(logger)
	streamerService := internal.NewStreamerService(envs, registry, internal.PoseCameraSource(envs, detectorEnvs, logger), logger)

	var relayService *internal.StreamerService
	if envs.RelayRtspUrl != "" {
		relayService = internal.NewStreamerService(envs, registry, internal.RelaySource(envs, logger), logger)
	}

	r := chi.NewRouter()
	r.Use(chiprometheus.NewMiddleware("camera_stream_pose"))

	webrtcRepository := internal.NewWebrtcRepository("Camera Stream with Pose", streamerService, relayService, envs, logger)
	webrtcRepository.RegisterRoutes(r)

	server := &http.Server{Addr: envs.ServerHost + ":" + envs.ServerPort, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(envs.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}()

	logger.Info("server started and running on port :" + envs.ServerPort)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "err", err)
	}

	if err := registry.CloseAll(); err != nil {
		logger.Error("session teardown", "err", err)
	}
}
