package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nanobook/nanobook/internal/app"
	"github.com/nanobook/nanobook/internal/extract"
	"github.com/nanobook/nanobook/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path>...",
	Short: "Index local files or directories without the HTTP server",
	Long: `Ingest reads the given files (or walks the given directories), extracts
their text, and indexes them into the vector collection. Unsupported file
types are skipped with a warning.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no ingestable files found")
	}

	indexed, failed := 0, 0
	for _, path := range files {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := ingestOne(ctx, a, path); err != nil {
			logger.Warn("skipping file", "path", path, "error", err)
			failed++
			continue
		}
		indexed++
	}

	logger.Info("ingestion finished", "indexed", indexed, "skipped", failed)
	if indexed == 0 {
		return errors.New("no files were indexed")
	}
	return nil
}

// collectFiles expands paths into the flat list of supported files.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %q: %w", path, err)
		}
	}
	return files, nil
}

func ingestOne(ctx context.Context, a *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	doc, err := extract.Text(name, data)
	if err != nil {
		return err
	}

	docID, err := a.Uploads.Save(name, data)
	if err != nil {
		return err
	}

	meta := rag.DocumentMeta{
		ID:        docID,
		Name:      name,
		MediaType: doc.MediaType,
		ByteSize:  int64(len(data)),
	}
	result, err := a.Pipeline.Ingest(ctx, meta, doc.Text)
	if err != nil {
		var ingErr *rag.IngestionError
		if errors.As(err, &ingErr) {
			a.Logger.Warn("document partially indexed",
				"path", path, "indexed", result.ChunksIndexed, "failed", len(result.FailedChunks))
			return nil
		}
		return err
	}

	a.Logger.Info("document indexed", "path", path, "chunks", result.ChunksIndexed)
	return nil
}
