package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/redis/go-redis/v9"

	"github.com/ch-dewez/asbplayer/pkg/anki"
	"github.com/ch-dewez/asbplayer/pkg/annotate"
	"github.com/ch-dewez/asbplayer/pkg/bridge"
	"github.com/ch-dewez/asbplayer/pkg/config"
	"github.com/ch-dewez/asbplayer/pkg/dictionary"
	"github.com/ch-dewez/asbplayer/pkg/subs"
	"github.com/ch-dewez/asbplayer/pkg/tokenizer"
	"github.com/ch-dewez/asbplayer/pkg/wordstore"
)

func main() {
	configFlag := flag.String("config", "", "Path to YAML configuration")
	serveFlag := flag.Bool("serve", false, "Run the bridge HTTP server")
	srtFlag := flag.String("srt", "", "Annotate an SRT subtitle file and print the result as JSON")
	urlFlag := flag.String("url", "", "Classify the main text of a web page and print word coverage")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Default()
	if *configFlag != "" {
		loaded, err := config.Load(*configFlag)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	backend, closeBackend, err := openStorage(cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to open word cache storage: %v", err)
	}
	defer closeBackend()

	store := wordstore.NewStore(backend)
	store.Logger = logger

	engine := &annotate.Engine{
		Tokenizer: &tokenizer.Adapter{},
		Store:     store,
		Anki:      anki.NewClient(cfg.Anki),
		Logger:    logger,
	}
	defer engine.Flush()

	switch {
	case *serveFlag:
		if err := serve(ctx, cfg, engine, logger); err != nil {
			log.Fatalf("Bridge server failed: %v", err)
		}
	case *srtFlag != "":
		if err := annotateSRT(ctx, engine, *srtFlag); err != nil {
			log.Fatalf("Failed to annotate %s: %v", *srtFlag, err)
		}
	case *urlFlag != "":
		if err := classifyURL(ctx, engine, *urlFlag); err != nil {
			log.Fatalf("Failed to classify %s: %v", *urlFlag, err)
		}
	default:
		log.Fatal("Please provide one of -serve, -srt, or -url")
	}
}

// openStorage builds the configured word-cache backend. The returned func
// releases whatever the backend holds open.
func openStorage(cfg config.StorageConfig) (wordstore.Storage, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendNone:
		return wordstore.Noop{}, noop, nil
	case config.BackendMemory, "":
		return wordstore.NewMemory(), noop, nil
	case config.BackendSQLite:
		s, err := wordstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return wordstore.NewRedis(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// loadDictionary loads the configured JMdict file, downloading it first when
// auto-download is enabled. A missing or unconfigured dictionary is not fatal.
func loadDictionary(ctx context.Context, cfg config.DictionaryConfig, logger *log.Logger) *dictionary.Dictionary {
	if cfg.Path == "" {
		return nil
	}
	if cfg.AutoDownload {
		if err := dictionary.EnsureDictionary(ctx, cfg.Path); err != nil {
			logger.Printf("Warning: failed to ensure dictionary at %s: %v. Continuing without definitions.", cfg.Path, err)
		}
	}
	entries, err := dictionary.LoadJMdictSimplified(cfg.Path)
	if err != nil {
		logger.Printf("Warning: failed to load dictionary: %v. Continuing without definitions.", err)
		return nil
	}
	logger.Printf("Dictionary loaded (%d entries)", len(entries))
	return dictionary.New(entries)
}

func serve(ctx context.Context, cfg *config.Config, engine *annotate.Engine, logger *log.Logger) error {
	server := &bridge.Server{
		Engine: engine,
		Anki:   engine.Anki,
		Dict:   loadDictionary(ctx, cfg.Dictionary, logger),
		Logger: logger,
	}

	httpServer := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("Bridge listening on %s", cfg.Server.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	engine.Flush()
	return nil
}

func annotateSRT(ctx context.Context, engine *annotate.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	subtitles, err := subs.ParseSRT(f)
	if err != nil {
		return err
	}

	annotated, err := engine.AnnotateSubtitles(ctx, subtitles)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(annotated)
}

func classifyURL(ctx context.Context, engine *annotate.Engine, pageURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return err
	}
	// Some article hosts reject requests without a browser User-Agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ja;q=0.8")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got status code %d", resp.StatusCode)
	}

	const maxBodySize = 10 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}
	if len(body) >= maxBodySize {
		return errors.New("response body exceeded maximum size limit")
	}

	// ruby readings would double-tokenize furigana-annotated words
	body = []byte(subs.StripRuby(string(body)))

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return fmt.Errorf("failed to extract article: %w", err)
	}

	classifications, err := engine.Classify(ctx, article.TextContent)
	if err != nil {
		return err
	}

	counts := map[subs.AnnotationType]int{}
	for _, c := range classifications {
		counts[c.AnnotationType]++
	}

	fmt.Printf("Title: %s\n", article.Title)
	fmt.Printf("Distinct words: %d\n", len(classifications))
	fmt.Printf("  known:     %d\n", counts[subs.Known])
	fmt.Printf("  unknown:   %d\n", counts[subs.Unknown])
	fmt.Printf("  notInDeck: %d\n", counts[subs.NotInDeck])
	return nil
}
