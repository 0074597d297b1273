package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-screening-call-service/internal/api/media"
	"ai-screening-call-service/internal/app"
	"ai-screening-call-service/internal/archive"
	"ai-screening-call-service/internal/config"
	"ai-screening-call-service/internal/events"
	apphttp "ai-screening-call-service/internal/http"
	"ai-screening-call-service/internal/observability"
	"ai-screening-call-service/internal/observability/metrics"
	"ai-screening-call-service/internal/schema"
	"ai-screening-call-service/internal/script"
	"ai-screening-call-service/internal/service/audio"
	"ai-screening-call-service/internal/service/classifier"
	"ai-screening-call-service/internal/service/classifier/bedrock"
	clsmock "ai-screening-call-service/internal/service/classifier/mock"
	"ai-screening-call-service/internal/service/dialogue"
	"ai-screening-call-service/internal/service/orchestrator"
	"ai-screening-call-service/internal/service/segment"
	"ai-screening-call-service/internal/service/speech"
	"ai-screening-call-service/internal/service/speech/elevenlabs"
	ttsmock "ai-screening-call-service/internal/service/speech/mock"
	"ai-screening-call-service/internal/service/stt"
	"ai-screening-call-service/internal/service/stt/google"
	sttmock "ai-screening-call-service/internal/service/stt/mock"
	"ai-screening-call-service/internal/transport/twilio"
)

const shutdownTimeout = 20 * time.Second

func main() {
	cfg := config.Load()
	application := app.New(cfg)
	logger := application.Logger

	if err := run(application); err != nil {
		logger.Fatal().Err(err).Msg("Service stopped with error")
	}
}

func run(application *app.Application) error {
	cfg := application.Cfg
	logger := application.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(); err != nil {
		return err
	}
	defer application.Shutdown()

	scr, err := script.Load(cfg.Script.Path)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}
	logger.Info().Str("path", cfg.Script.Path).Int("questions", scr.Len()).Msg("Screening script loaded")

	cls, err := newClassifier(ctx, cfg.Classifier)
	if err != nil {
		return err
	}
	synth, err := newSynthesizer(cfg.TTS)
	if err != nil {
		return err
	}

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicTurn:    cfg.Kafka.TopicTurn,
		TopicSummary: cfg.Kafka.TopicSummary,
		Principal:    cfg.Kafka.Principal,
	}, schema.New())
	defer publisher.Close()

	obs := observability.NewServer(cfg.Observability.MetricsAddr)

	// The archive is written before the summary event is published.
	fanout := events.NewFanout()
	deps := apphttp.Deps{}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		store := archive.NewRedisStore(rdb, archive.WithTTL(cfg.Redis.TTL), archive.WithPrefix(cfg.Redis.Prefix))
		fanout.Add("archive", store)
		obs.AddReadinessCheck("redis", store.Ping)
		deps.Archive = store
	}
	fanout.Add("kafka", publisher)

	manager := orchestrator.NewManager(orchestrator.Options{
		Machine:    dialogue.New(scr),
		Classifier: cls,
		Notifier:   fanout,
		Turns:      publisher,
		Generator:  segment.New(),
		Config: orchestrator.Config{
			Segment: segment.Config{
				ShortSilence: cfg.Turn.ShortSilence,
				LongSilence:  cfg.Turn.LongSilence,
				MergeOverlap: cfg.Turn.MergeOverlap,
			},
			TickInterval:    cfg.Turn.TickInterval,
			QueueSize:       orchestrator.DefaultConfig().QueueSize,
			FlushTimeout:    cfg.Turn.FlushTimeout,
			PlaybackTimeout: cfg.Turn.PlaybackTimeout,
		},
	})

	calls := media.NewServer(manager, synth, newSTTFactory(cfg.STT), cfg.STT.Provider, audio.Limits{
		MaxAudioBytes: cfg.Limits.MaxAudioBytes,
		MaxDuration:   cfg.Limits.MaxCallDuration,
	})
	deps.Media = twilio.NewHandler(calls, twilio.DefaultOptions())
	deps.Sessions = manager

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           apphttp.NewRouter(application, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	obs.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC server started")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Int("activeSessions", manager.Active()).Msg("Shutting down")
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Live calls are ended first so their summaries are flushed while
		// the publisher and archive are still open.
		if err := manager.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("Sessions did not finish before shutdown deadline")
		}
		if err := httpServer.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("HTTP server shutdown")
		}
		grpcServer.GracefulStop()
		return obs.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newClassifier(ctx context.Context, cfg config.ClassifierConfig) (*classifier.Adapter, error) {
	policy := classifier.DefaultConfig()
	policy.Timeout = cfg.Timeout
	policy.MaxRetries = cfg.MaxRetries
	policy.MemoSize = cfg.MemoSize

	switch cfg.Provider {
	case "bedrock":
		client, err := bedrock.New(ctx, bedrock.Config{Region: cfg.Region, ModelID: cfg.ModelID})
		if err != nil {
			return nil, fmt.Errorf("create bedrock classifier: %w", err)
		}
		return classifier.NewAdapter(client, cfg.Provider, policy), nil
	case "mock":
		return classifier.NewAdapter(clsmock.New(), cfg.Provider, policy), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

func newSynthesizer(cfg config.TTSConfig) (speech.Synthesizer, error) {
	switch cfg.Provider {
	case "elevenlabs":
		if cfg.APIKey == "" {
			return nil, errors.New("ELEVENLABS_API_KEY is required for the elevenlabs provider")
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       cfg.APIKey,
			VoiceID:      cfg.VoiceID,
			Model:        cfg.Model,
			OutputFormat: cfg.OutputFormat,
		}, nil), nil
	case "mock":
		s := ttsmock.New()
		s.FrameDelay = 20 * time.Millisecond // real-time pacing
		return s, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.Provider)
	}
}

func newSTTFactory(cfg config.STTConfig) media.STTFactory {
	if cfg.Provider != "google" {
		return func(context.Context) (stt.Adapter, error) {
			return sttmock.New(), nil
		}
	}
	gcfg := google.Config{
		LanguageCode:   cfg.LanguageCode,
		SampleRateHz:   int32(cfg.SampleRateHz),
		InterimResults: cfg.InterimResults,
		AudioEncoding:  cfg.AudioEncoding,
		Model:          cfg.Model,
	}
	return func(ctx context.Context) (stt.Adapter, error) {
		return google.New(ctx, gcfg)
	}
}
