package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/pipeline"
	"github.com/sells-group/judgment-cli/internal/store"
)

var servePort int

// enrichResponse is the body of POST /v1/records/enrich.
type enrichResponse struct {
	Record model.CaseRecord      `json:"record"`
	Stages []stageResponse       `json:"stages,omitempty"`
	Status pipeline.RecordStatus `json:"status"`
}

type stageResponse struct {
	Stage      model.Stage          `json:"stage"`
	Status     pipeline.StageStatus `json:"status"`
	DurationMs int64                `json:"duration_ms"`
	Error      string               `json:"error,omitempty"`
}

// server holds the HTTP handlers' dependencies.
type server struct {
	enrich pipeline.EnrichFunc
	store  store.Store // may be nil
	// maxInFlight caps concurrent enrich requests; extra ones get 429.
	// Zero means no cap.
	maxInFlight int
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		enrich := r.With()
		if s.maxInFlight > 0 {
			enrich = r.With(middleware.Throttle(s.maxInFlight))
		}
		enrich.Post("/records/enrich", s.handleEnrich)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	return r
}

func (s *server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	var rec model.CaseRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := s.enrich(r.Context(), &rec)
	switch {
	case errors.Is(err, pipeline.ErrNoDocument):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		zap.L().Error("serve: enrich failed", zap.String("pdf_link", rec.DocumentLink), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "enrichment interrupted")
		return
	}

	resp := enrichResponse{Record: rec, Status: pipeline.RecordProcessed}
	if out.Failed() {
		resp.Status = pipeline.RecordFailed
	}
	for _, st := range out.Stages {
		sr := stageResponse{Stage: st.Stage, Status: st.Status, DurationMs: st.Duration.Milliseconds()}
		if st.Err != nil {
			sr.Error = st.Err.Error()
		}
		resp.Stages = append(resp.Stages, sr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "no run store configured")
		return
	}
	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := r.URL.Query().Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
				return
			}
			*dst = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("serve: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotImplemented, "no run store configured")
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		zap.L().Error("serve: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve single-record enrichment and run history over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stagesFlag, _ := cmd.Flags().GetString("stages")
		stages, err := parseStageFlag(stagesFlag)
		if err != nil {
			return err
		}
		env, err := initEnv(ctx, stages)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		api := &server{
			enrich:      env.Pipeline.Enrich,
			store:       env.Store,
			maxInFlight: cfg.Batch.Concurrency,
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().String("stages", "all", "stages run for each enrich request")
	rootCmd.AddCommand(serveCmd)
}
