package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/document"
	"github.com/sells-group/judgment-cli/internal/extract"
	"github.com/sells-group/judgment-cli/internal/fetcher"
	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/ocr"
	"github.com/sells-group/judgment-cli/internal/pipeline"
	"github.com/sells-group/judgment-cli/internal/prompts"
	"github.com/sells-group/judgment-cli/internal/recordio"
	"github.com/sells-group/judgment-cli/internal/store"
	"github.com/sells-group/judgment-cli/pkg/summarizer"
)

// appEnv holds the clients shared by the enrichment commands.
type appEnv struct {
	Store    store.Store // nil when store.driver is "none"
	IO       *recordio.IO
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// Close releases everything initEnv opened.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initEnv validates the configuration for stages and builds the store,
// record I/O and the enrichment pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, stages []model.Stage) (*appEnv, error) {
	if err := cfg.Validate(stages); err != nil {
		return nil, err
	}

	env := &appEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st != nil {
		env.Store = st
		env.closers = append(env.closers, st.Close)
	}

	env.IO, err = initRecordIO(ctx)
	if err != nil {
		return nil, err
	}

	set, err := prompts.Load(cfg.Prompts.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load prompts")
	}

	var ext *extract.Extractor
	if needsLLM(stages) {
		var closeFn func() error
		ext, closeFn, err = extract.NewFromConfig(ctx, cfg, set)
		if err != nil {
			return nil, eris.Wrap(err, "init extractor")
		}
		env.closers = append(env.closers, closeFn)
	}

	bulk, err := ocr.NewTextExtractor(cfg.OCR)
	if err != nil {
		return nil, eris.Wrap(err, "init ocr")
	}
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	dl := fetcher.NewRouter(
		fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:         cfg.Fetch.UserAgent,
			Timeout:           timeout,
			RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
		}),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: timeout}),
	)
	docs := document.New(dl, ocr.NewPageSource(cfg.OCR, cfg.Fetch.ImageDPI, ocr.ExecRunner{}), bulk, document.Options{
		TempDir: cfg.Fetch.TempDir,
		Retry:   cfg.Retry.Fetch.Policy(),
	})

	var sum summarizer.Client
	if cfg.Summary.URL != "" {
		sum = summarizer.NewClient(cfg.Summary.URL,
			summarizer.WithTimeout(time.Duration(cfg.Summary.TimeoutSecs)*time.Second))
	}

	env.Pipeline = pipeline.New(docs, ext, sum, pipeline.OptionsFromConfig(cfg, stages))
	ok = true

	zap.L().Info("pipeline ready",
		zap.Strings("stages", stageNames(stages)),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// initRecordIO builds record I/O with S3 support.
func initRecordIO(ctx context.Context) (*recordio.IO, error) {
	s3, err := recordio.NewS3Store(ctx, cfg.S3)
	if err != nil {
		return nil, eris.Wrap(err, "init s3")
	}
	return recordio.New(s3), nil
}

func needsLLM(stages []model.Stage) bool {
	for _, s := range stages {
		if s != model.StageSummary {
			return true
		}
	}
	return false
}

func stageNames(stages []model.Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
