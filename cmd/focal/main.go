package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	rz "github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/usefocal/focal"
	"github.com/usefocal/focal/bleve"
	"github.com/usefocal/focal/chromem"
	"github.com/usefocal/focal/crawl"
	"github.com/usefocal/focal/env"
	"github.com/usefocal/focal/fs"
	"github.com/usefocal/focal/gemini"
	"github.com/usefocal/focal/gofeed"
	focalhttp "github.com/usefocal/focal/http"
	"github.com/usefocal/focal/htmltomarkdown"
	"github.com/usefocal/focal/ollama"
	"github.com/usefocal/focal/readability"
	"github.com/usefocal/focal/rod"
	"github.com/usefocal/focal/sqlite"
	"github.com/usefocal/focal/tiktoken"
	"github.com/usefocal/focal/trafilatura"
	"github.com/usefocal/focal/whatlang"
	"github.com/usefocal/focal/xxhash"
	"github.com/usefocal/focal/zerolog"
)

// Exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitInvalidArgs  = 2
	exitMissingIndex = 3
	exitNoEmbedder   = 4
)

// errNoIndex marks a read command pointed at a data dir that was never
// indexed.
var errNoIndex = errors.New("index directory does not exist")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := NewMain()
	defer m.Close()

	if err := m.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errNoIndex):
		return exitMissingIndex
	case focal.IsEmbedderUnavailable(err):
		return exitNoEmbedder
	case focal.ErrorCode(err) == focal.EINVALID:
		return exitInvalidArgs
	default:
		return exitError
	}
}

// Main represents the program.
type Main struct {
	// Configuration loaded from the environment. Set before Run to skip
	// environment loading in tests.
	Config *env.Config

	appDB   *sqlite.DB
	closers []io.Closer
}

// NewMain returns a new instance of Main with defaults.
func NewMain() *Main {
	return &Main{}
}

// Close releases everything Run opened, newest first.
func (m *Main) Close() error {
	var first error
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	m.closers = nil
	m.appDB = nil
	return first
}

func (m *Main) deferClose(c io.Closer) {
	m.closers = append(m.closers, c)
}

// Run executes the CLI with the given arguments.
func (m *Main) Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if m.Config == nil {
		cfg, err := env.Load()
		if err != nil {
			return focal.Errorf(focal.EINVALID, "configuration: %v", err)
		}
		m.Config = cfg
	}
	cfg := m.Config

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	paths := cfg.Paths()
	if err := paths.Validate(); err != nil {
		return err
	}

	deps := &Dependencies{
		Ctx:       ctx,
		Stdout:    stdout,
		Stderr:    stderr,
		Config:    cfg,
		Paths:     paths,
		Logger:    logger,
		ExportDir: fs.NewExportStore,
	}

	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("focal"),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) {}),
		kong.Bind(deps),
	)
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}

	if len(args) == 0 {
		_, _ = parser.Parse([]string{"--help"})
		return focal.Errorf(focal.EINVALID, "no command specified; run 'focal --help' to see available commands")
	}
	cmd := args[0]
	if cmd == "help" || cmd == "--help" || cmd == "-h" {
		_, _ = parser.Parse([]string{"--help"})
		return nil
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		return focal.Errorf(focal.EINVALID, "%v", err)
	}

	if err := m.wire(ctx, cmd, cli, deps); err != nil {
		return err
	}
	return kongCtx.Run(deps)
}

// wire opens the services the command needs. Read commands refuse to run
// against a data dir that has never been indexed; write commands create
// the layout first.
func (m *Main) wire(ctx context.Context, cmd string, cli *CLI, deps *Dependencies) error {
	cfg, paths, logger := deps.Config, deps.Paths, deps.Logger

	switch cmd {
	case "serve", "refresh", "upsert":
		if err := paths.EnsureDirs(); err != nil {
			return err
		}
	case "search", "export":
		if _, err := os.Stat(paths.IndexDir); os.IsNotExist(err) {
			fmt.Fprintln(deps.Stderr, "Hint: run 'focal refresh <query>' or 'focal serve' to build the index")
			return fmt.Errorf("%w at %s", errNoIndex, paths.IndexDir)
		}
	}

	switch cmd {
	case "jobs":
		store, err := m.openJobStore(paths)
		if err != nil {
			return err
		}
		deps.JobStore = store
		return nil

	case "export":
		deps.Normalized = fs.NewNormalizedFile(paths.NormalizedPath)
		deps.Raw = fs.NewRawStore(paths.CrawlRawDir)
		deps.RawDir = paths.CrawlRawDir
		deps.Extractor = trafilatura.NewExtractor()
		deps.Converter = htmltomarkdown.NewConverter()
		counter, err := tiktoken.NewTokenCounter()
		if err != nil {
			return err
		}
		deps.Tokens = counter
		return nil

	case "upsert":
		vectors, _, err := m.openVectors(cfg, paths, logger)
		if err != nil {
			return err
		}
		deps.Vectors = vectors
		return nil
	}

	// search, refresh and serve share the index stack.
	st, err := m.openIndexStack(cfg, paths, logger)
	if err != nil {
		return err
	}
	deps.Vectors = st.vectors
	deps.Embedder = st.embedder

	if cmd == "refresh" || cmd == "serve" {
		engine, err := m.buildEngine(ctx, cfg, paths, logger, st, cmd == "serve")
		if err != nil {
			return err
		}
		deps.Engine = engine
	}
	if cmd == "refresh" {
		return nil
	}

	hybrid := &focal.HybridSearch{
		Keyword:             st.idx,
		Vector:              st.vectors,
		Index:               st.indexer,
		KeywordWeight:       cfg.HybridKeywordWeight,
		VectorWeight:        cfg.HybridVectorWeight,
		SmartMinResults:     cfg.SmartMinResults,
		ConfidenceThreshold: cfg.SmartConfidenceThreshold,
		CandidatePool:       cfg.HybridCandidatePool,
	}
	if deps.Engine != nil {
		hybrid.Jobs = deps.Engine
		hybrid.FocusedCrawlEnabled = cfg.FocusedCrawlEnabled
	}
	deps.Search = zerolog.NewLoggingSearchService(hybrid, logger)

	if cmd == "serve" {
		deps.Pending = crawl.NewPendingWorker(st.queue, st.vectors, crawl.WithPendingLogger(logger))

		addr := cfg.ListenAddr
		if cli.Serve.Addr != "" {
			addr = cli.Serve.Addr
		}
		server := focalhttp.NewServer()
		server.Addr = addr
		server.SearchService = deps.Search
		server.JobService = deps.Engine
		server.VectorStore = st.vectors
		server.Embedder = st.embedder
		server.JobLogs = fs.NewJobLogDir(paths.LogsDir)
		server.Logger = logger
		deps.Server = server
	}
	return nil
}

// indexStack bundles the retrieval components shared by search, refresh
// and serve.
type indexStack struct {
	idx      *bleve.Index
	indexer  *bleve.Indexer
	vectors  focal.VectorStore
	queue    focal.PendingQueue
	embedder focal.Embedder
}

// openIndexStack opens the keyword index, the incremental indexer and
// the vector store.
func (m *Main) openIndexStack(cfg *env.Config, paths focal.Paths, logger rz.Logger) (*indexStack, error) {
	idx, err := bleve.Open(paths.IndexDir, logger)
	if err != nil {
		return nil, err
	}
	m.deferClose(idx)

	vectors, queue, err := m.openVectors(cfg, paths, logger)
	if err != nil {
		return nil, err
	}

	return &indexStack{
		idx: idx,
		indexer: bleve.NewIndexer(idx,
			fs.OpenLedger(paths.LedgerPath, logger),
			fs.OpenSimHashFile(paths.SimHashPath, logger),
			fs.NewLastIndexFile(paths.LastIndexTimePath),
			logger),
		vectors:  vectors,
		queue:    queue,
		embedder: newEmbedder(cfg, logger),
	}, nil
}

// openAppDB opens the app-state database once and shares the handle.
func (m *Main) openAppDB(paths focal.Paths) (*sqlite.DB, error) {
	if m.appDB != nil {
		return m.appDB, nil
	}
	db := sqlite.NewDB(paths.AppStateDBPath)
	if err := db.Open(); err != nil {
		return nil, fmt.Errorf("open app state at %q: %w", paths.AppStateDBPath, err)
	}
	m.deferClose(db)
	m.appDB = db
	return db, nil
}

// openJobStore opens the app-state database and its job store.
func (m *Main) openJobStore(paths focal.Paths) (focal.JobStore, error) {
	db, err := m.openAppDB(paths)
	if err != nil {
		return nil, err
	}
	return sqlite.NewJobStore(db)
}

// openVectors opens the vector store with its embedder, chunker and
// pending queue.
func (m *Main) openVectors(cfg *env.Config, paths focal.Paths, logger rz.Logger) (focal.VectorStore, focal.PendingQueue, error) {
	db, err := m.openAppDB(paths)
	if err != nil {
		return nil, nil, err
	}

	queue, err := sqlite.NewPendingQueue(db)
	if err != nil {
		return nil, nil, err
	}

	chunker, err := tiktoken.NewChunker()
	if err != nil {
		return nil, nil, err
	}

	store, err := chromem.Open(chromem.Config{
		Dir:       paths.VectorDir,
		Embedder:  newEmbedder(cfg, logger),
		Chunker:   chunker,
		Pending:   queue,
		Ledger:    fs.OpenLedger(paths.VectorLedgerPath, logger),
		SimHashes: fs.OpenSimHashFile(paths.VectorSimHashPath, logger),
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return store, queue, nil
}

// buildEngine assembles the focused-crawl stack: discovery, crawler,
// normalizer, the pipeline and the job engine on top. withBrowser
// additionally starts the headless render fallback.
func (m *Main) buildEngine(ctx context.Context, cfg *env.Config, paths focal.Paths, logger rz.Logger, st *indexStack, withBrowser bool) (*crawl.Engine, error) {
	lwdb := sqlite.NewDB(paths.LearnedWebDBPath)
	if err := lwdb.Open(); err != nil {
		return nil, fmt.Errorf("open learned web at %q: %w", paths.LearnedWebDBPath, err)
	}
	m.deferClose(lwdb)

	lwService, err := sqlite.NewLearnedWebService(lwdb)
	if err != nil {
		return nil, err
	}
	learnedWeb := zerolog.NewLoggingLearnedWebService(lwService, logger)

	var suggester focal.Suggester
	var reranker focal.Reranker
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.GeminiAPIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
		}
		suggester = gemini.NewSuggester(client)
		reranker = gemini.NewReranker(client)
	}

	discoveryOpts := []crawl.DiscovererOption{
		crawl.WithRegistry(fs.NewSeedRegistry(paths.SeedRegistryPath)),
		crawl.WithFeeds(gofeed.NewFetcher(cfg.UserAgent)),
		crawl.WithSitemaps(focalhttp.NewSitemapService(nil)),
		crawl.WithAuthority(sqlite.NewAuthorityIndex(lwdb)),
		crawl.WithScoreWeights(crawl.ScoreWeights{
			Base:       1.0,
			ValuePrior: cfg.DiscoverWValue,
			Freshness:  cfg.DiscoverWFresh,
			Authority:  cfg.DiscoverWAuth,
		}),
		crawl.WithDiscovererLogger(logger),
	}
	if suggester != nil {
		discoveryOpts = append(discoveryOpts, crawl.WithSuggester(suggester))
	}

	extractors := []focal.Extractor{trafilatura.NewExtractor(), readability.NewExtractor()}
	clientOpts := []crawl.ClientOption{
		crawl.WithRobots(focalhttp.NewRobotsPolicy(nil, cfg.UserAgent)),
		crawl.WithExtractors(extractors...),
		crawl.WithCrawlUserAgent(cfg.UserAgent),
		crawl.WithMinDelay(cfg.FrontierPolitenessDelay),
		crawl.WithClientLogger(logger),
	}
	if withBrowser {
		if fetcher, err := rod.NewFetcher(); err != nil {
			logger.Warn().Err(err).Msg("headless browser unavailable, JS-heavy pages degrade to plain fetches")
		} else {
			m.deferClose(fetcher)
			clientOpts = append(clientOpts, crawl.WithRenderFallback(rod.NewLoggingFetcher(fetcher, logger), 0))
		}
	}

	pipeline := &crawl.Pipeline{
		Discovery:    crawl.NewDiscoverer(learnedWeb, discoveryOpts...),
		Crawler:      crawl.NewClient(clientOpts...),
		LearnedWeb:   learnedWeb,
		Normalizer:   crawl.NewNormalizer(extractors, whatlang.New(), crawl.WithNormalizerLogger(logger)),
		Index:        st.indexer,
		Vectors:      st.vectors,
		Embedder:     st.embedder,
		Raw:          fs.NewRawStore(paths.CrawlRawDir),
		Normalized:   fs.NewNormalizedFile(paths.NormalizedPath),
		Reranker:     reranker,
		PerHostCap:   cfg.FrontierPerHost,
		RerankMargin: cfg.FrontierRerankMargin,
		Logger:       logger,
	}

	jobStore, err := m.openJobStore(paths)
	if err != nil {
		return nil, err
	}

	engine := crawl.NewEngine(pipeline, jobStore, fs.NewJobLogDir(paths.LogsDir),
		crawl.WithCooldown(cfg.SmartTriggerCooldown),
		crawl.WithBudget(cfg.FocusedCrawlBudget),
		crawl.WithEngineLogger(logger))
	if err := engine.Open(); err != nil {
		return nil, err
	}
	m.deferClose(engine)
	return engine, nil
}

// newEmbedder picks the deterministic test embedder or the Ollama one.
func newEmbedder(cfg *env.Config, logger rz.Logger) focal.Embedder {
	if cfg.EmbedTestMode {
		return xxhash.NewEmbedder()
	}
	return ollama.NewEmbedder(
		ollama.WithHost(cfg.OllamaHost),
		ollama.WithModel(cfg.EmbedModel),
		ollama.WithAutopull(cfg.EmbedAutopull),
		ollama.WithLogger(logger),
	)
}

// newLogger builds the process logger writing to stderr.
func newLogger(stderr io.Writer, level string) (rz.Logger, error) {
	lvl, err := rz.ParseLevel(level)
	if err != nil {
		return rz.Nop(), focal.Errorf(focal.EINVALID, "log level %q: %v", level, err)
	}
	w := rz.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}
	return rz.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
