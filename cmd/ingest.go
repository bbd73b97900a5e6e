package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/pipeline"
)

var (
	ingestTenant  string
	ingestAssetID string
	ingestWorkers int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest files or directories",
	Long: `Ingests each file through the pipeline. Directories are walked and every
.txt, .md and .html file below them is ingested.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestTenant, "tenant", "t", "", "tenant id")
	ingestCmd.Flags().StringVar(&ingestAssetID, "asset-id", "", "asset id (single file only)")
	ingestCmd.Flags().IntVarP(&ingestWorkers, "workers", "w", 0, "concurrent documents (default from config)")
	_ = ingestCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(ingestCmd)
}

// collectFiles expands directories into the ingestible files below them.
// Files named explicitly are always kept so the pipeline can report on them.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && pipeline.SupportedExtension(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}

type ingestFailure struct {
	path string
	err  error
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Yellow("No ingestible files found")
		return nil
	}
	if ingestAssetID != "" && len(files) > 1 {
		return fmt.Errorf("--asset-id needs exactly one file, got %d", len(files))
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	workers := cfg.Ingest.Workers
	if ingestWorkers > 0 {
		workers = ingestWorkers
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	color.Blue("\nIngesting %d files for tenant %s\n", len(files), ingestTenant)
	bar := newDocBar(cmd.ErrOrStderr(), len(files), "📄 Ingesting documents...")

	var (
		mu       sync.Mutex
		failures []ingestFailure
		chunks   int
	)
	err = submitAll(pool, files, func(path string) {
		defer bar.Add(1)

		res, err := ingestFile(cmd, a, path)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, ingestFailure{path, err})
			return
		}
		chunks += res.ChunkCount
	})
	if err != nil {
		return err
	}
	bar.Finish()

	color.Green("\n✓ Ingested %d of %d files into %d chunks\n", len(files)-len(failures), len(files), chunks)
	for _, f := range failures {
		color.Red("✗ %s: %v\n", f.path, f.err)
	}
	if len(failures) > 0 {
		return fmt.Errorf("%d files failed", len(failures))
	}
	return nil
}

// submitAll runs task for every item on pool and returns once all submitted
// tasks have finished, including when scheduling fails part way through.
func submitAll[T any](pool *ants.Pool, items []T, task func(T)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for _, item := range items {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			task(item)
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("failed to schedule %v: %w", item, err)
		}
	}
	return nil
}

func ingestFile(cmd *cobra.Command, a *app, path string) (*models.ProcessingResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.pipeline.Ingest(cmd.Context(), pipeline.IngestRequest{
		TenantID: ingestTenant,
		AssetID:  ingestAssetID,
		File: models.UploadedFile{
			FileName: filepath.Base(path),
			Data:     data,
		},
		CorrelationID: correlation.NewID("CLI"),
	})
}
