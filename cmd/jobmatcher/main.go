package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"github.com/steph-grigors/ai-job-matcher/internal/api/handler"
	"github.com/steph-grigors/ai-job-matcher/internal/api/router"
	"github.com/steph-grigors/ai-job-matcher/internal/config"
	"github.com/steph-grigors/ai-job-matcher/internal/embedding"
	"github.com/steph-grigors/ai-job-matcher/internal/fetcher"
	"github.com/steph-grigors/ai-job-matcher/internal/llm"
	applogger "github.com/steph-grigors/ai-job-matcher/internal/logger"
	"github.com/steph-grigors/ai-job-matcher/internal/matcher"
	"github.com/steph-grigors/ai-job-matcher/internal/outbox"
	"github.com/steph-grigors/ai-job-matcher/internal/parser"
	"github.com/steph-grigors/ai-job-matcher/internal/refiner"
	"github.com/steph-grigors/ai-job-matcher/internal/session"
	"github.com/steph-grigors/ai-job-matcher/internal/storage"
	"github.com/steph-grigors/ai-job-matcher/internal/tracing"
	"github.com/steph-grigors/ai-job-matcher/pkg/ratelimit"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("load config: %v", err)
	}

	applogger.Init(applogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	log := applogger.Logger
	glog.SetLogger(hertzadapter.From(log))
	log.Info().Str("config", configPath).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("init tracing failed")
	}

	store, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage failed")
	}
	defer store.Close(log)

	chatModel, err := llm.NewOpenAIChatModel(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init chat model failed")
	}

	extractor, err := parser.NewEinoPDFTextExtractor(ctx, parser.WithPDFLogger(log))
	if err != nil {
		log.Fatal().Err(err).Msg("init pdf extractor failed")
	}

	structurer := parser.NewLLMProfileStructurer(chatModel,
		parser.WithMinResumeChars(cfg.Matcher.MinResumeChars),
		parser.WithStructurerLogger(log),
	)

	var textEmbedder embedding.TextEmbedder
	openAIEmbedder, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimensions,
		embedding.WithMaxBatchSize(cfg.Embedding.MaxBatchSize),
		embedding.WithEmbedderLogger(log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init embedder failed")
	}
	textEmbedder = openAIEmbedder
	if cfg.Embedding.CacheEnabled && store.Redis != nil {
		textEmbedder = embedding.NewCachedEmbedder(openAIEmbedder, store.Redis, parseDurationOr(cfg.Embedding.CacheTTL, time.Hour), log)
		log.Info().Msg("embedding cache enabled")
	}

	fetcherOptions := []fetcher.FetcherOption{
		fetcher.WithFetcherLogger(log),
		fetcher.WithRetryPolicy(cfg.Adzuna.MaxRetries, time.Duration(cfg.Adzuna.RetryBackoffMS)*time.Millisecond),
		fetcher.WithPageLimits(cfg.Adzuna.ResultsPerPage, cfg.Adzuna.MaxTotalResults),
	}
	if cfg.Adzuna.CacheEnabled && store.Redis != nil {
		fetcherOptions = append(fetcherOptions, fetcher.WithResultCache(store.Redis, parseDurationOr(cfg.Adzuna.CacheTTL, time.Hour)))
		log.Info().Msg("listing cache enabled")
	}
	listingFetcher, err := fetcher.NewAdzunaFetcher(cfg.Adzuna.AppID, cfg.Adzuna.APIKey, cfg.Adzuna.BaseURL, cfg.Adzuna.Country, fetcherOptions...)
	if err != nil {
		log.Fatal().Err(err).Msg("init listing fetcher failed")
	}

	limiter := ratelimit.NewTokenBucket(cfg.LLM.QPM, 0)
	matcherOptions := []matcher.MatcherOption{
		matcher.WithThresholds(cfg.Matcher.MinScore, cfg.Matcher.TopN),
		matcher.WithFusionWeights(cfg.Matcher.SimilarityWeight, cfg.Matcher.LLMWeight),
		matcher.WithScoringConcurrency(cfg.Matcher.TopMForLLM, cfg.Matcher.ScoringWorkers),
		matcher.WithLimiter(limiter),
		matcher.WithMatcherLogger(log),
	}
	if cfg.Matcher.UseLLMScoring {
		matcherOptions = append(matcherOptions, matcher.WithScorer(matcher.NewLLMScorer(chatModel, matcher.WithScorerLogger(log))))
	}
	listingMatcher := matcher.NewMatcher(textEmbedder, matcherOptions...)

	resultRefiner := refiner.NewRefiner(chatModel, refiner.WithRefinerLogger(log))

	sessions := session.NewRegistry(
		session.WithTTL(cfg.SessionTTL()),
		session.WithCleanupInterval(cfg.SessionCleanupInterval()),
		session.WithRegistryLogger(log),
	)
	defer sessions.Close()

	searchHandler := handler.NewSearchHandler(
		extractor, structurer, listingFetcher, listingMatcher, resultRefiner,
		sessions, store, &cfg.RabbitMQ, log,
	)

	if store.MySQL != nil && store.RabbitMQ != nil {
		relay := outbox.NewRelay(store.MySQL, store.RabbitMQ,
			outbox.WithInterval(parseDurationOr(cfg.RabbitMQ.RelayInterval, 5*time.Second)),
			outbox.WithBatchSize(cfg.RabbitMQ.RelayBatchSize),
			outbox.WithMaxAttempts(cfg.RabbitMQ.MaxPublishAttempts),
			outbox.WithRelayLogger(log),
		)
		go relay.Start(ctx)
	}

	serverOptions := []hertzconfig.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var tracingCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tCfg := hertztracing.NewServerTracer()
		serverOptions = append(serverOptions, tracer)
		tracingCfg = tCfg
	}
	h := server.New(serverOptions...)
	if tracingCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracingCfg))
	}

	router.RegisterRoutes(h, searchHandler, cfg.Server.APIKey)
	log.Info().Str("address", cfg.Server.Address).Msg("http server starting")

	go func() {
		if err := h.Run(); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
