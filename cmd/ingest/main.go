package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"helpdesk/internal/analytics"
	"helpdesk/internal/config"
	"helpdesk/internal/database"
	"helpdesk/internal/knowledge"
	"helpdesk/internal/openai"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	if err := newRootCmd(cfg, logger).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var (
		docID      string
		sourceType string
		remove     bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Load documents into the knowledge base",
		Long: "Each file becomes one document. JSON files hold a page list ([{\"page\":1,\"text\":\"...\"}]); " +
			"other files are plain text with pages separated by form feeds.",
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if docID != "" && len(args) > 1 {
				return fmt.Errorf("--doc-id can only be used with a single file")
			}
			if sourceType == "" {
				sourceType = cfg.KnowledgeSourceType
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger, args, docID, sourceType, remove)
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "Document id (default: file name without extension)")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "Knowledge partition (default: KNOWLEDGE_SOURCE_TYPE)")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the documents instead of loading them")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, paths []string, docID, sourceType string, remove bool) error {
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer func() { _ = db.Close() }()

	writeClient, err := database.NewWriteClient(db)
	if err != nil {
		return err
	}

	store, err := knowledge.NewStore(cfg, writeClient, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare knowledge store: %w", err)
	}

	if remove {
		for _, path := range paths {
			id := documentID(path, docID)
			if err := store.DeleteDocument(ctx, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
			logger.Info().Str("doc_id", id).Msg("Document deleted")
		}
		return nil
	}

	client, err := openai.NewClient(cfg, logger)
	if err != nil {
		return err
	}
	tracker, err := analytics.NewService(writeClient, logger)
	if err != nil {
		return err
	}
	ingestor := knowledge.NewIngestor(client, store, logger)

	for _, path := range paths {
		id := documentID(path, docID)
		doc, err := knowledge.LoadDocument(path, id, sourceType)
		if err != nil {
			return err
		}

		stats, err := ingestor.Ingest(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", path, err)
		}
		if err := tracker.TrackIngestion(ctx, id, stats.Chunks); err != nil {
			logger.Warn().Err(err).Str("doc_id", id).Msg("Failed to track ingestion")
		}

		logger.Info().
			Str("doc_id", id).
			Str("source_type", sourceType).
			Int("pages", stats.PagesProcessed).
			Int("skipped", stats.PagesSkipped).
			Int("chunks", stats.Chunks).
			Msg("Document ingested")
	}
	return nil
}

func documentID(path, override string) string {
	if override != "" {
		return override
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
