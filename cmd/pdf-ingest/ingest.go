package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"fixit-rag-api/internal/application/retrieval"
	"fixit-rag-api/pkg/logger"
)

// fileIngester 入库单个文件
type fileIngester interface {
	IngestFile(ctx context.Context, ownerID, sourceName, path string, opts retrieval.IngestOptions) (*retrieval.IngestResult, error)
}

// batchOptions 批量入库参数
type batchOptions struct {
	Dir          string
	ProcessedDir string
	OwnerID      string
	Concurrency  int
	Ext          string
}

// fileReport 单个文件的处理结果
type fileReport struct {
	Name   string
	Pages  int
	Chunks int
	Stored int
	Failed int
	Moved  bool
	Err    error
}

// listFiles 列出目录下匹配扩展名的文件（不递归，按名称排序）
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// runBatch 并发入库目录下的文件，成功的文件移动到 ProcessedDir。
// 单个文件失败不影响其他文件；只有取消会中止整个批次。
func runBatch(ctx context.Context, ing fileIngester, opts batchOptions) ([]fileReport, error) {
	names, err := listFiles(opts.Dir, opts.Ext)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	processed := opts.ProcessedDir
	if !filepath.IsAbs(processed) {
		processed = filepath.Join(opts.Dir, processed)
	}
	if err := os.MkdirAll(processed, 0o755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}

	reports := make([]fileReport, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Concurrency, 1))
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep := ingestOne(gctx, ing, opts, processed, name)

			mu.Lock()
			reports[i] = rep
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

func ingestOne(ctx context.Context, ing fileIngester, opts batchOptions, processed, name string) fileReport {
	rep := fileReport{Name: name}
	path := filepath.Join(opts.Dir, name)
	ctx = logger.WithContext(ctx, logger.SourceNameKey, name)

	res, err := ing.IngestFile(ctx, opts.OwnerID, name, path, retrieval.IngestOptions{
		Extra: map[string]any{"fileName": name, "type": "pdf_manual"},
	})
	if res != nil {
		rep.Pages = res.PageCount
		rep.Chunks = res.ChunkCount
		rep.Stored = res.Committed()
		rep.Failed = len(res.Failed)
	}
	if err != nil {
		rep.Err = err
		logger.Error(ctx, "file ingest failed", err)
		return rep
	}

	if err := os.Rename(path, filepath.Join(processed, name)); err != nil {
		rep.Err = fmt.Errorf("move to processed: %w", err)
		logger.Error(ctx, "failed to move processed file", err)
		return rep
	}
	rep.Moved = true
	logger.Info(ctx, "file ingested", "pages", rep.Pages, "chunks", rep.Chunks, "stored", rep.Stored, "failed", rep.Failed)
	return rep
}

// printSummary 输出每个文件的统计
func printSummary(w io.Writer, reports []fileReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tPAGES\tCHUNKS\tSTORED\tFAILED\tSTATUS")
	var ok, failed int
	for _, r := range reports {
		status := "ok"
		switch {
		case r.Err != nil:
			status = "error: " + r.Err.Error()
			failed++
		case r.Failed > 0:
			status = "partial"
			ok++
		default:
			ok++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", r.Name, r.Pages, r.Chunks, r.Stored, r.Failed, status)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d file(s) processed, %d failed\n", ok, failed)
}
