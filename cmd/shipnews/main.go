package main

import (
	"net/http"
	"os"

	"shipnews/internal/config"
	"shipnews/internal/digest"
	"shipnews/internal/extract"
	"shipnews/internal/feed"
	"shipnews/internal/fetch"
	"shipnews/internal/logger"
	"shipnews/internal/server"
	"shipnews/internal/session"
	"shipnews/internal/sources"
	"shipnews/internal/storage"
	"shipnews/internal/translate"
	"shipnews/internal/tts"
	"shipnews/internal/weather"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	set, err := sources.Load(cfg.SourcesConfigPath)
	if err != nil {
		logger.Error("failed to load source configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("sources configured", "count", len(set.Sources))

	fetcher := fetch.NewClient(cfg.FetchTimeout, cfg.RetryAttempts, cfg.RetryDelay)
	feeds := feed.New(&http.Client{Timeout: cfg.FeedTimeout}, set)
	htmlTier := extract.NewHTMLExtractor(cfg.FetchTimeout)
	translator := translate.New(cfg.TranslateTimeout, cfg.OpenAIAPIKey, cfg.MaxTranslateRequests)
	cache := storage.NewDigestCache(cfg.CacheDir)

	builder := digest.NewBuilder(set, fetcher, feeds, htmlTier, translator, cache,
		digest.WithTimeout(cfg.AggregateTimeout),
		digest.WithRetention(cfg.CacheRetentionDays),
	)

	sessions := session.NewStore(cfg.SessionTTL)
	defer sessions.Close()

	speech := tts.NewClient(cfg.AudioDir, cfg.TTSTimeout)
	forecasts := weather.NewClient(cfg.WeatherTimeout)

	srv := server.New(builder, cache, sessions, speech, forecasts, cfg.StaticDir)
	if err := srv.ListenAndServe(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
