package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/h3poteto/livecamera/internal/adapters/http"
	"github.com/h3poteto/livecamera/internal/adapters/rtc"
	sig "github.com/h3poteto/livecamera/internal/adapters/signal"
	"github.com/h3poteto/livecamera/internal/app/session"
	"github.com/h3poteto/livecamera/internal/app/sink"
	"github.com/h3poteto/livecamera/internal/config"
	"github.com/h3poteto/livecamera/internal/core"
	"github.com/h3poteto/livecamera/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}

	endpoint, err := cfg.SignalURL()
	if err != nil {
		log.Fatal().Err(err).Msg("no signaling endpoint")
	}

	sigOpts := sig.DefaultOptions()
	sigOpts.InvokeTimeout = cfg.InvokeTimeout
	sigOpts.WriteWait = cfg.WriteWait
	sigOpts.PongWait = cfg.PongWait
	sigOpts.PingPeriod = cfg.PingPeriod
	sigOpts.ReadLimit = cfg.ReadLimit
	sigOpts.SendBuffer = cfg.SendBuffer

	engine := rtc.NewEngine(rtc.EngineOptions{VerboseLogs: zerolog.GlobalLevel() <= zerolog.TraceLevel})
	sinks := sink.NewManager(cfg.RecordDir)
	defer sinks.Close()

	sess := session.New(engine, session.Options{
		Dialer:     sig.NewDialer(sigOpts),
		ICEServers: cfg.ICEServers,
		OnRemoteTrackAdded: func(id domain.ProducerID, track core.Track) {
			sinks.Add(id, track)
		},
		OnRemoteTrackRemoved: func(id domain.ProducerID) {
			sinks.Remove(id)
		},
		OnStateChange: func(state session.State) {
			log.Info().Str("module", "client").Stringer("state", state).Msg("session state")
		},
	})

	var srv *http.Server
	if cfg.StatusAddr != "" {
		srv = &http.Server{
			Addr:    cfg.StatusAddr,
			Handler: router.SetupRouter(cfg, sess, sinks),
		}
		go func() {
			log.Info().Str("addr", cfg.StatusAddr).Msg("status server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server error")
			}
		}()
	}

	if err := sess.Open(ctx, endpoint); err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("failed to open session")
		shutdown(srv, sess)
		os.Exit(1)
	}

	if cfg.PublishIVF != "" {
		go publish(ctx, sess, cfg.PublishIVF)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case <-sess.Done():
		log.Warn().Msg("session ended")
	}
	shutdown(srv, sess)
	log.Info().Msg("Client exited gracefully")
}

func publish(ctx context.Context, sess *session.Session, path string) {
	logger := log.With().Str("module", "client").Str("file", path).Logger()
	src, err := rtc.OpenIVF(path)
	if err != nil {
		logger.Error().Err(err).Msg("open ivf")
		return
	}
	defer src.Track().Stop()

	if err := sess.WaitReady(ctx); err != nil {
		logger.Error().Err(err).Msg("session never became ready")
		return
	}
	id, err := sess.ProduceLocalTrack(ctx, src.Track())
	if err != nil {
		logger.Error().Err(err).Msg("produce failed")
		return
	}
	logger.Info().Str("producer", string(id)).Msg("publishing")

	if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("ivf source stopped")
	}
}

func shutdown(srv *http.Server, sess *session.Session) {
	if err := sess.Close(); err != nil {
		log.Error().Err(err).Msg("session close")
	}
	if srv == nil {
		return
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
}
