// Package ocr turns a PDF on disk into per-page text or PNG images.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/config"
)

// PageSource exposes a PDF's pages individually. Pages are 1-based.
type PageSource interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
	PageText(ctx context.Context, pdfPath string, page int) (string, error)
	PageImage(ctx context.Context, pdfPath string, page int) ([]byte, error)
}

// TextExtractor returns the text of a document's leading pages in one call.
type TextExtractor interface {
	ExtractPages(ctx context.Context, pdfPath string, maxPages int) ([]string, error)
}

// ParseError means the bytes could not be opened as a document. Retrying
// the same bytes will not help.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ocr: cannot read %s as a document: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Transient always reports false.
func (e *ParseError) Transient() bool { return false }

// Runner executes an external command and captures its output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	zap.L().Debug("ocr: exec",
		zap.String("cmd", name),
		zap.Strings("args", args),
		zap.Duration("took", time.Since(start)),
		zap.Int("stdout_bytes", stdout.Len()),
		zap.Error(err),
	)
	return stdout.Bytes(), stderr.Bytes(), err
}

// NewPageSource returns the poppler-backed page source.
func NewPageSource(cfg config.OCRConfig, dpi int, runner Runner) *Poppler {
	return NewPoppler(PopplerOptions{
		PdfInfoPath:   cfg.PdfInfoPath,
		PdfToTextPath: cfg.PdfToTextPath,
		PdfToPPMPath:  cfg.PdfToPPMPath,
		DPI:           dpi,
	}, runner)
}

// NewTextExtractor returns the bulk text extractor for the configured
// provider, or nil when pages are read individually.
func NewTextExtractor(cfg config.OCRConfig) (TextExtractor, error) {
	switch cfg.Provider {
	case "local", "":
		return nil, nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
