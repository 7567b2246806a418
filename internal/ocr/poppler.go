package ocr

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PopplerOptions names the poppler-utils binaries and the render resolution.
type PopplerOptions struct {
	PdfInfoPath   string
	PdfToTextPath string
	PdfToPPMPath  string
	DPI           int
}

// Poppler reads pages with pdfinfo, pdftotext and pdftoppm.
type Poppler struct {
	opts   PopplerOptions
	runner Runner
}

// NewPoppler creates a Poppler page source. Empty paths use the binaries on
// PATH; a nil runner uses ExecRunner.
func NewPoppler(opts PopplerOptions, runner Runner) *Poppler {
	if opts.PdfInfoPath == "" {
		opts.PdfInfoPath = "pdfinfo"
	}
	if opts.PdfToTextPath == "" {
		opts.PdfToTextPath = "pdftotext"
	}
	if opts.PdfToPPMPath == "" {
		opts.PdfToPPMPath = "pdftoppm"
	}
	if opts.DPI <= 0 {
		opts.DPI = 100
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Poppler{opts: opts, runner: runner}
}

// PageCount returns the number of pages reported by pdfinfo.
func (p *Poppler) PageCount(ctx context.Context, pdfPath string) (int, error) {
	out, stderr, err := p.runner.Run(ctx, p.opts.PdfInfoPath, pdfPath)
	if err != nil {
		return 0, p.failure(ctx, pdfPath, "pdfinfo", err, stderr)
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if convErr != nil {
			return 0, &ParseError{Path: pdfPath, Err: eris.Wrapf(convErr, "pdfinfo page count %q", line)}
		}
		return n, nil
	}
	return 0, &ParseError{Path: pdfPath, Err: eris.New("pdfinfo reported no page count")}
}

// PageText returns the layout-preserving text of one page.
func (p *Poppler) PageText(ctx context.Context, pdfPath string, page int) (string, error) {
	n := strconv.Itoa(page)
	out, stderr, err := p.runner.Run(ctx, p.opts.PdfToTextPath, "-layout", "-f", n, "-l", n, pdfPath, "-")
	if err != nil {
		return "", p.failure(ctx, pdfPath, "pdftotext", err, stderr)
	}
	return string(out), nil
}

// PageImage renders one page to PNG bytes.
func (p *Poppler) PageImage(ctx context.Context, pdfPath string, page int) ([]byte, error) {
	n := strconv.Itoa(page)
	out, stderr, err := p.runner.Run(ctx, p.opts.PdfToPPMPath,
		"-png", "-r", strconv.Itoa(p.opts.DPI), "-f", n, "-l", n, "-singlefile", pdfPath)
	if err != nil {
		return nil, p.failure(ctx, pdfPath, "pdftoppm", err, stderr)
	}
	if len(out) == 0 {
		return nil, &ParseError{Path: pdfPath, Err: eris.Errorf("pdftoppm produced no image for page %d", page)}
	}
	return out, nil
}

// failure separates cancellation from unreadable input.
func (p *Poppler) failure(ctx context.Context, pdfPath, tool string, err error, stderr []byte) error {
	if ctx.Err() != nil {
		return eris.Wrapf(ctx.Err(), "ocr: %s cancelled", tool)
	}
	msg := strings.TrimSpace(string(stderr))
	return &ParseError{Path: pdfPath, Err: eris.Wrapf(err, "%s: %s", tool, msg)}
}
