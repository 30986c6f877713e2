package main

import (
	"context"
	"encoding/json"
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

	"github.com/sells-group/visibility-cli/internal/model"
	"github.com/sells-group/visibility-cli/internal/pipeline"
	"github.com/sells-group/visibility-cli/internal/store"
)

var servePort int

// reportRunner lets the router be tested without a live engine.
type reportRunner interface {
	Run(ctx context.Context, req pipeline.ReportRequest) (*model.Report, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook and report query server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		router := newRouter(ctx, env.Store, env.Engine)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the HTTP surface: the webhook trigger and the report
// query endpoints. baseCtx outlives individual webhook requests so async
// report runs are not cancelled when the caller disconnects.
func newRouter(baseCtx context.Context, st store.Store, runner reportRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/report", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL            string `json:"url"`
			Name           string `json:"name"`
			Description    string `json:"description"`
			Industry       string `json:"industry"`
			Products       string `json:"products"`
			TargetCustomer string `json:"target_customer"`
			Location       string `json:"location"`
			MessageID      string `json:"message_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.URL == "" || body.Name == "" {
			writeError(w, http.StatusBadRequest, "url and name are required")
			return
		}

		reportReq := pipeline.ReportRequest{
			Company: model.Company{
				URL:            body.URL,
				Name:           body.Name,
				Description:    body.Description,
				Industry:       body.Industry,
				Products:       body.Products,
				TargetCustomer: body.TargetCustomer,
				Location:       body.Location,
			},
			MessageID: body.MessageID,
		}

		// Run asynchronously; redelivered messages are dropped by the
		// engine's claim on message_id.
		go func() {
			report, err := runner.Run(baseCtx, reportReq)
			if err != nil {
				if eris.Is(err, pipeline.ErrDuplicateMessage) {
					return
				}
				zap.L().Error("webhook report failed",
					zap.String("url", reportReq.Company.URL),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook report complete",
				zap.String("url", reportReq.Company.URL),
				zap.String("report_id", report.ID),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"url":    body.URL,
		})
	})

	r.Get("/reports/{id}", func(w http.ResponseWriter, req *http.Request) {
		full, err := st.GetFullReport(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch report")
			return
		}
		if full == nil {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		writeJSON(w, http.StatusOK, full)
	})

	r.Get("/companies/latest", func(w http.ResponseWriter, req *http.Request) {
		url := req.URL.Query().Get("url")
		if url == "" {
			writeError(w, http.StatusBadRequest, "url query parameter is required")
			return
		}
		report, err := st.GetLatestReportByCompany(req.Context(), url)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch report")
			return
		}
		if report == nil {
			writeError(w, http.StatusNotFound, "no report for company")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Get("/reports/{id}/competitors", func(w http.ResponseWriter, req *http.Request) {
		standings, err := st.CompetitorLeaderboard(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch competitors")
			return
		}
		writeJSON(w, http.StatusOK, standings)
	})

	r.Get("/reports/{id}/sources", func(w http.ResponseWriter, req *http.Request) {
		limit := 10
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		sources, err := st.TopSources(req.Context(), chi.URLParam(req, "id"), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to fetch sources")
			return
		}
		writeJSON(w, http.StatusOK, sources)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
