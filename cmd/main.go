package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"faq-rag/internal/chromemdb"
	"faq-rag/internal/config"
	"faq-rag/internal/db"
	"faq-rag/internal/embedding"
	"faq-rag/internal/helper"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/parser"
	"faq-rag/internal/quiz"
	"faq-rag/internal/rag"
	"faq-rag/internal/retry"
	"faq-rag/internal/watcher"
	"faq-rag/internal/web"
)

const configFilePath = "./configs/config.yaml"

type app struct {
	cfg      *config.Config
	index    rag.Index
	builder  *rag.Builder
	pipeline *rag.RAG
	quiz     *quiz.Quiz
	bunDB    *bun.DB

	// Set when the index lives in a file the watcher can follow.
	reloader  watcher.Reloader
	indexFile string
}

func main() {
	helper.SetupLogger("info", os.Stdout)

	configPath := flag.String("config", configFilePath, "Path to the YAML config file")
	build := flag.Bool("build", false, "Build the knowledge base from the FAQ source and exit")
	source := flag.String("source", "", "FAQ source file, overrides source_path from the config")
	query := flag.String("query", "", "Question to be answered")
	quizMode := flag.Bool("quiz", false, "Run the quiz in the terminal")
	serve := flag.Bool("serve", false, "Start the HTTP server (default when no other mode is given)")
	flag.Parse()

	modes := 0
	for _, on := range []bool{*build, *query != "", *quizMode, *serve} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		log.Fatal().Msg("Please provide only one of -build, -query, -quiz or -serve")
	}

	path := *configPath
	if _, err := os.Stat(path); err != nil && path == configFilePath {
		path = ""
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if *source != "" {
		cfg.SourcePath = *source
	}
	helper.SetupLogger(cfg.LogLevel, os.Stdout)
	log.Debug().Str("source", cfg.SourcePath).Str("backend", cfg.Index.Backend).Msg("Loaded config")

	a, err := newApp(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error starting")
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case *build:
		err = runBuild(ctx, a)
	case *query != "":
		err = runQuery(ctx, a, *query)
	case *quizMode:
		err = runQuiz(ctx, a, os.Stdin, os.Stdout)
	default:
		err = runServer(ctx, a)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed")
		a.close()
		os.Exit(1)
	}
}

func newApp(cfg *config.Config) (*app, error) {
	policy := retry.NewPolicy(cfg.Retry)

	embedder, err := embedding.NewEmbedder(cfg.Embedding, policy)
	if err != nil {
		return nil, err
	}
	chat, err := llmservice.NewChatModel(cfg.LLM, policy)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	switch cfg.Index.Backend {
	case config.BackendPGVector:
		a.bunDB = db.NewDB(db.ConnectDB(cfg.Index.PGVector), cfg.Index.PGVector.Debug)
		a.index = db.NewStore(a.bunDB, cfg.Index.PGVector.Table, embedder.Model())
	default:
		if err := helper.CreateFolder(cfg.Index.Path); err != nil {
			return nil, err
		}
		store := chromemdb.NewVectorDBManager(cfg.Index, embedder.Model(), embedder.EmbedQuery)
		a.index = store
		a.reloader = store
		a.indexFile = store.FilePath()
	}

	a.builder = rag.NewBuilder(parser.FAQLoader{}, embedder, a.index)
	a.pipeline = rag.NewRAG(embedder, a.index, chat, cfg.Index)
	a.quiz = quiz.NewQuiz(
		quiz.NewGenerator(a.index),
		a.pipeline,
		quiz.NewComparator(embedder, cfg.Quiz),
	)
	return a, nil
}

func (a *app) close() {
	if a.bunDB != nil {
		_ = a.bunDB.Close()
		a.bunDB = nil
	}
}

func runBuild(ctx context.Context, a *app) error {
	report, err := a.builder.Build(ctx, a.cfg.SourcePath)
	if err != nil {
		return err
	}
	helper.PrettyPrint(map[string]any{
		"source":     report.Source,
		"documents":  report.Documents,
		"durationMs": report.Duration.Milliseconds(),
	})
	return nil
}

func runQuery(ctx context.Context, a *app, question string) error {
	answer, err := a.pipeline.Query(ctx, question)
	if err != nil {
		return err
	}
	fmt.Println(answer.Text)
	for _, s := range answer.Sources {
		log.Debug().Str("id", s.ID).Float32("score", s.Score).Str("prompt", s.Entry.Prompt).Msg("Source")
	}
	return nil
}

// runQuiz asks questions until the user types "quit" or input ends.
func runQuiz(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	var session quiz.Session
	defer a.quiz.End(&session)

	for {
		if err := a.quiz.Start(ctx, &session); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nQuestion: %s\nYour answer (or \"quit\"): ", session.Question)

		for session.Score == nil {
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if strings.EqualFold(line, "quit") {
				return nil
			}
			if err := a.quiz.Submit(ctx, &session, line); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return ctx.Err()
				}
				fmt.Fprintf(out, "%v\nYour answer: ", err)
				continue
			}
		}

		fmt.Fprintf(out, "Similarity: %.2f\n%s\nReference answer: %s\n", *session.Score, session.Band.Feedback(), session.Reference)
	}
}

func runServer(ctx context.Context, a *app) error {
	creds, err := web.NewCredentials(a.cfg.Auth.Users)
	if err != nil {
		return err
	}
	if !creds.Enabled() {
		log.Warn().Msg("No users configured, rebuilds through the API are disabled")
	}

	deps := web.Deps{
		Answerer:    a.pipeline,
		Quiz:        a.quiz,
		Builder:     a.builder,
		Index:       a.index,
		Credentials: creds,
		SourcePath:  a.cfg.SourcePath,
	}

	if a.cfg.Watch.Enabled {
		w, err := watcher.New(a.cfg.SourcePath, a.indexFile, a.reloader)
		if err != nil {
			return err
		}
		defer w.Close()
		a.builder.OnBuilt(func(rag.BuildReport) { w.MarkFresh() })
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("File watcher stopped")
			}
		}()
		deps.Stale = w
	}

	if err := a.index.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Knowledge base not loaded; an administrator has to build it")
	}

	server := web.NewRouter(a.cfg.Server, web.NewHandler(deps), web.NewSessionStore())
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
