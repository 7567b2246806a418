// Package document turns a document URL into an ordered slice of pages.
package document

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/judgment-cli/internal/fetcher"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/ocr"
	"github.com/sells-group/judgment-cli/internal/resilience"
)

// Options configures a Fetcher.
type Options struct {
	// TempDir holds downloaded documents while their pages are read. Empty
	// uses the OS default.
	TempDir string
	// Retry wraps the download. Page extraction is never retried.
	Retry resilience.Policy
	// Workers bounds page extraction per document. Default: GOMAXPROCS.
	Workers int
}

// Fetcher downloads a document and materializes its leading pages.
type Fetcher struct {
	dl    fetcher.Fetcher
	pages ocr.PageSource
	bulk  ocr.TextExtractor
	opts  Options
}

// New creates a Fetcher. bulk may be nil, in which case text pages are read
// one by one from pages.
func New(dl fetcher.Fetcher, pages ocr.PageSource, bulk ocr.TextExtractor, opts Options) *Fetcher {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.Policy{MaxAttempts: 1}
	}
	return &Fetcher{dl: dl, pages: pages, bulk: bulk, opts: opts}
}

// Fetch downloads url and returns at most maxPages leading pages in page
// order. maxPages <= 0 reads every page. Download failures are
// *fetcher.FetchError; unreadable bytes are *ocr.ParseError.
func (f *Fetcher) Fetch(ctx context.Context, url string, mode model.PageMode, maxPages int) ([]model.PageContent, error) {
	start := time.Now()
	log := zap.L().With(zap.String("pdf_link", url), zap.String("mode", string(mode)))

	path, cleanup, err := f.download(ctx, url)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var out []model.PageContent
	switch mode {
	case model.PageModeText:
		if f.bulk != nil {
			out, err = f.bulkText(ctx, path, maxPages)
		} else {
			out, err = f.perPage(ctx, path, mode, maxPages)
		}
	case model.PageModeImage:
		out, err = f.perPage(ctx, path, mode, maxPages)
	default:
		return nil, eris.Errorf("document: unknown page mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("document: pages read",
		zap.Int("pages", len(out)),
		zap.Duration("took", time.Since(start)),
	)
	return out, nil
}

// Text joins the text of the leading pages with blank lines.
func (f *Fetcher) Text(ctx context.Context, url string, maxPages int) (string, error) {
	pages, err := f.Fetch(ctx, url, model.PageModeText, maxPages)
	if err != nil {
		return "", err
	}
	return JoinText(pages), nil
}

// JoinText concatenates page text in order.
func JoinText(pages []model.PageContent) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, strings.TrimSpace(p.Text))
	}
	return strings.Join(parts, "\n\n")
}

func (f *Fetcher) download(ctx context.Context, url string) (string, func(), error) {
	dir, err := os.MkdirTemp(f.opts.TempDir, "judgment-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "document: create temp dir")
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	path := filepath.Join(dir, "document.pdf")

	policy := f.opts.Retry.WithLogger("document.download", zap.String("pdf_link", url))
	err = resilience.Do(ctx, policy, func(ctx context.Context) error {
		_, dlErr := f.dl.DownloadToFile(ctx, url, path)
		return dlErr
	})
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

func (f *Fetcher) perPage(ctx context.Context, path string, mode model.PageMode, maxPages int) ([]model.PageContent, error) {
	count, err := f.pages.PageCount(ctx, path)
	if err != nil {
		return nil, err
	}
	n := count
	if maxPages > 0 && maxPages < n {
		n = maxPages
	}

	out := make([]model.PageContent, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.opts.Workers)
	for i := range n {
		page := i + 1
		g.Go(func() error {
			pc := model.PageContent{Number: page}
			switch mode {
			case model.PageModeImage:
				img, err := f.pages.PageImage(gctx, path, page)
				if err != nil {
					return err
				}
				pc.Image = img
				pc.MediaType = "image/png"
			default:
				text, err := f.pages.PageText(gctx, path, page)
				if err != nil {
					return err
				}
				pc.Text = text
			}
			out[i] = pc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) bulkText(ctx context.Context, path string, maxPages int) ([]model.PageContent, error) {
	texts, err := f.bulk.ExtractPages(ctx, path, maxPages)
	if err != nil {
		return nil, err
	}
	out := make([]model.PageContent, len(texts))
	for i, t := range texts {
		out[i] = model.PageContent{Number: i + 1, Text: t}
	}
	return out, nil
}
