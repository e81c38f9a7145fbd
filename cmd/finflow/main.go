// finflow serves Korean financial Q&A over HTTP: quotes, investment
// analysis, news, term explanations, and charts, produced by a multi-agent
// workflow behind a single ask endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/finchat-labs/finflow/capability"
	"github.com/finchat-labs/finflow/charts"
	"github.com/finchat-labs/finflow/graph"
	"github.com/finchat-labs/finflow/graph/emit"
	"github.com/finchat-labs/finflow/llm"
	"github.com/finchat-labs/finflow/marketdata"
	"github.com/finchat-labs/finflow/newsfeed"
	"github.com/finchat-labs/finflow/newsgraph"
	"github.com/finchat-labs/finflow/session"
	"github.com/finchat-labs/finflow/symbols"
	"github.com/finchat-labs/finflow/vector"
	"github.com/finchat-labs/finflow/workflow"
)

const (
	backendDialTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
)

type config struct {
	Addr           string
	RequestTimeout time.Duration
	PoolSize       int
	LogJSON        bool

	QuoteAPI    string
	RedisAddr   string
	MilvusAddr  string
	MongoURI    string
	SQLitePath  string
	MySQLDSN    string
	SymbolsYAML string
}

func loadConfig() config {
	return config{
		Addr:           getEnv("FINFLOW_ADDR", ":8080"),
		RequestTimeout: getDuration("FINFLOW_REQUEST_TIMEOUT", 0),
		PoolSize:       getInt("FINFLOW_POOL_SIZE", 0),
		LogJSON:        os.Getenv("FINFLOW_LOG_JSON") == "true",
		QuoteAPI:       os.Getenv("QUOTE_API_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		MilvusAddr:     os.Getenv("MILVUS_ADDR"),
		MongoURI:       os.Getenv("MONGO_URI"),
		SQLitePath:     os.Getenv("FINFLOW_SQLITE"),
		MySQLDSN:       os.Getenv("FINFLOW_MYSQL_DSN"),
		SymbolsYAML:    os.Getenv("FINFLOW_SYMBOLS_YAML"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring non-numeric env value", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ignoring unparseable env duration", "key", key, "value", v)
		return fallback
	}
	return d
}

func main() {
	if err := run(); err != nil {
		slog.Error("finflow exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "path to the optional .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Info("no .env file loaded, using existing environment", "path", *envFile)
	}

	cfg := loadConfig()
	slog.Info("starting finflow", "addr", cfg.Addr)

	ctx := context.Background()
	caps, cleanup, err := buildCaps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := prometheus.NewRegistry()
	opts := []workflow.Option{
		workflow.WithMetrics(graph.NewMetrics(registry)),
		workflow.WithEmitter(emit.NewLogEmitter(os.Stderr, cfg.LogJSON)),
	}
	if cfg.PoolSize > 0 {
		opts = append(opts, workflow.WithWorkerPoolSize(cfg.PoolSize))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, workflow.WithRequestTimeout(cfg.RequestTimeout))
	}
	if store := openSessions(cfg); store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				slog.Error("closing session store", "error", err)
			}
		}()
		opts = append(opts, workflow.WithSessionStore(store))
	}

	wf, err := workflow.New(caps, opts...)
	if err != nil {
		return err
	}
	defer wf.Close()

	srv := newServer(wf, registry)
	httpServer := &http.Server{
		Addr:        cfg.Addr,
		Handler:     srv.router(),
		ReadTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}

// buildCaps assembles the capability set from configured backends. The
// language model is required; every other backend degrades to a fake or
// no-op with a log line so the server comes up on a laptop with no
// infrastructure.
func buildCaps(ctx context.Context, cfg config) (capability.Caps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	lm, err := llm.FromEnv(ctx)
	if err != nil {
		return capability.Caps{}, cleanup, err
	}
	slog.Info("language model ready", "provider", lm.Name())

	var embedder capability.Embedder
	if emb, ok := lm.(capability.Embedder); ok {
		embedder = emb
	} else {
		slog.Warn("provider has no embeddings API, semantic ranking degraded", "provider", lm.Name())
		embedder = &capability.FakeEmbedder{}
	}

	table := symbols.Default()
	if cfg.SymbolsYAML != "" {
		if err := table.LoadYAML(cfg.SymbolsYAML); err != nil {
			slog.Warn("symbols file not loaded", "path", cfg.SymbolsYAML, "error", err)
		} else {
			slog.Info("symbols loaded", "path", cfg.SymbolsYAML, "entries", table.Len())
		}
	}

	market := buildMarket(ctx, cfg, &closers)
	index := buildIndex(ctx, cfg, embedder, &closers)
	graphStore := buildNewsGraph(ctx, cfg, &closers)

	caps := capability.Caps{
		LM:         lm,
		Symbols:    table,
		Market:     market,
		Index:      index,
		Embedder:   embedder,
		NewsGraph:  graphStore,
		NewsFeed:   newsfeed.NewClient(),
		Translator: newsfeed.NewLMTranslator(lm),
		Charts:     charts.NewRenderer(),
	}
	return caps, cleanup, nil
}

func buildMarket(ctx context.Context, cfg config, closers *[]func()) capability.MarketData {
	if cfg.QuoteAPI == "" {
		slog.Warn("QUOTE_API_URL not set, serving canned demo quotes")
		return &capability.FakeMarket{Quotes: demoQuotes()}
	}

	client, err := marketdata.NewClient(cfg.QuoteAPI)
	if err != nil {
		slog.Warn("quote API misconfigured, serving canned demo quotes", "error", err)
		return &capability.FakeMarket{Quotes: demoQuotes()}
	}

	if cfg.RedisAddr == "" {
		return client
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, backendDialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable, serving quotes uncached", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return client
	}
	*closers = append(*closers, func() { _ = rdb.Close() })
	slog.Info("quote cache enabled", "addr", cfg.RedisAddr)
	return marketdata.NewCache(client, rdb)
}

func buildIndex(ctx context.Context, cfg config, embedder capability.Embedder, closers *[]func()) capability.SemanticIndex {
	if cfg.MilvusAddr == "" {
		slog.Warn("MILVUS_ADDR not set, semantic search disabled")
		return &capability.FakeIndex{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, backendDialTimeout)
	defer cancel()
	idx, err := vector.NewIndex(dialCtx, cfg.MilvusAddr, embedder)
	if err != nil {
		slog.Warn("milvus unreachable, semantic search disabled", "addr", cfg.MilvusAddr, "error", err)
		return &capability.FakeIndex{}
	}
	*closers = append(*closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), backendDialTimeout)
		defer cancel()
		_ = idx.Close(closeCtx)
	})
	slog.Info("semantic index ready", "addr", cfg.MilvusAddr)
	return idx
}

func buildNewsGraph(ctx context.Context, cfg config, closers *[]func()) capability.NewsGraph {
	if cfg.MongoURI == "" {
		slog.Warn("MONGO_URI not set, article graph disabled")
		return &capability.FakeNewsGraph{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, backendDialTimeout)
	defer cancel()
	cli, err := mongodriver.Connect(dialCtx, mongooptions.Client().ApplyURI(cfg.MongoURI))
	if err == nil {
		err = cli.Ping(dialCtx, readpref.Primary())
	}
	if err != nil {
		slog.Warn("mongodb unreachable, article graph disabled", "uri", cfg.MongoURI, "error", err)
		return &capability.FakeNewsGraph{}
	}

	store, err := newsgraph.NewStore(newsgraph.Options{Client: cli})
	if err != nil {
		slog.Warn("article graph unavailable", "error", err)
		disconnectCtx, cancel := context.WithTimeout(context.Background(), backendDialTimeout)
		defer cancel()
		_ = cli.Disconnect(disconnectCtx)
		return &capability.FakeNewsGraph{}
	}
	*closers = append(*closers, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), backendDialTimeout)
		defer cancel()
		_ = cli.Disconnect(disconnectCtx)
	})
	slog.Info("article graph ready")
	return store
}

func openSessions(cfg config) session.Store {
	switch {
	case cfg.MySQLDSN != "":
		store, err := session.NewMySQLStore(cfg.MySQLDSN)
		if err != nil {
			slog.Warn("mysql session store unavailable, conversations are stateless", "error", err)
			return nil
		}
		slog.Info("session store ready", "backend", "mysql")
		return store
	case cfg.SQLitePath != "":
		store, err := session.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			slog.Warn("sqlite session store unavailable, conversations are stateless", "path", cfg.SQLitePath, "error", err)
			return nil
		}
		slog.Info("session store ready", "backend", "sqlite", "path", cfg.SQLitePath)
		return store
	default:
		slog.Info("session store not configured, conversations are stateless")
		return nil
	}
}

// demoQuotes backs the keyless development server.
func demoQuotes() map[string]capability.Quote {
	return map[string]capability.Quote{
		"005930": {Price: 71500, ChangePct: 2.1, Volume: 12345678, PER: 12.5, PBR: 1.3, ROE: 9.8, MarketCap: 427_000_000_000_000, Sector: "전기전자"},
		"000660": {Price: 178500, ChangePct: -1.2, Volume: 3456789, PER: 18.2, PBR: 2.4, ROE: 11.3, MarketCap: 130_000_000_000_000, Sector: "전기전자"},
		"035420": {Price: 215000, ChangePct: 0.4, Volume: 987654, PER: 32.1, PBR: 1.9, ROE: 6.2, MarketCap: 35_000_000_000_000, Sector: "서비스업"},
	}
}
