// Package main 批量导入 PDF 手册
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fixit-rag-api/internal/config"
	"fixit-rag-api/internal/wire"
	"fixit-rag-api/pkg/logger"
	"fixit-rag-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	var (
		configPath  = flag.String("config", "", "config file path (default: configs/config.yaml)")
		dir         = flag.String("dir", "", "directory containing the files to ingest")
		owner       = flag.String("owner", "", "owner id the documents belong to")
		processed   = flag.String("processed", "", "directory for ingested files, relative to -dir")
		concurrency = flag.Int("concurrency", 0, "number of files ingested in parallel")
		ext         = flag.String("ext", ".pdf", "file extension to ingest")
	)
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "pdf-ingest",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	opts := batchOptions{
		Dir:          firstNonEmpty(*dir, cfg.Ingest.Dir),
		ProcessedDir: firstNonEmpty(*processed, cfg.Ingest.ProcessedDir, "processed"),
		OwnerID:      firstNonEmpty(*owner, cfg.Ingest.OwnerID),
		Concurrency:  cfg.Ingest.Concurrency,
		Ext:          *ext,
	}
	if *concurrency > 0 {
		opts.Concurrency = *concurrency
	}
	if opts.Dir == "" || opts.OwnerID == "" {
		fmt.Println("both -dir and -owner are required")
		os.Exit(2)
	}

	svc, cleanup, err := wire.InitializeService(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize retrieval service", err)
	}
	defer cleanup()

	logger.Info(ctx, "batch ingest started", "dir", opts.Dir, "owner_id", opts.OwnerID, "concurrency", opts.Concurrency)
	reports, err := runBatch(ctx, svc, opts)
	printSummary(os.Stdout, reports)
	if err != nil {
		logger.Error(ctx, "batch ingest aborted", err)
		cleanup()
		os.Exit(1)
	}
	if len(reports) == 0 {
		fmt.Printf("no %s files found in %s\n", opts.Ext, opts.Dir)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
