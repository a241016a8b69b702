package main

import (
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

	"github.com/sells-group/chainwatch/internal/jobs"
	"github.com/sells-group/chainwatch/internal/store"
	"github.com/sells-group/chainwatch/internal/supplychain"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API server",
	Long:  "Runs the scheduler alongside an HTTP API for job control, alert handling, and analytics queries.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mgr, st, err := initManager(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		riskTable, err := supplychain.LoadRiskTable(cfg.Analytics.RiskTablePath)
		if err != nil {
			return err
		}

		var alertArchive supplychain.AlertArchiver
		if st != nil {
			alertArchive = st
		}
		alerts := supplychain.NewAlertManager(cfg.Alerts, alertArchive)
		analytics := supplychain.NewAnalytics(cfg.Analytics, riskTable)

		mgr.Start()
		defer mgr.Stop()

		api := &apiServer{mgr: mgr, alerts: alerts, analytics: analytics, archive: st}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type apiServer struct {
	mgr       *jobs.Manager
	alerts    *supplychain.AlertManager
	analytics *supplychain.Analytics
	archive   store.Store
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", s.handleJobsList)
		r.Get("/metrics", s.handleJobMetrics)
		r.Get("/{id}", s.handleJobStatus)
		r.Post("/{id}/run", s.handleJobRun)
		r.Post("/{id}/cancel", s.handleJobCancel)
	})

	r.Route("/api/alerts", func(r chi.Router) {
		r.Get("/", s.handleAlertsList)
		r.Get("/stats", s.handleAlertStats)
		r.Post("/evaluate", s.handleAlertsEvaluate)
		r.Post("/{id}/acknowledge", s.handleAlertAcknowledge)
		r.Post("/{id}/resolve", s.handleAlertResolve)
	})

	r.Route("/api/analytics", func(r chi.Router) {
		r.Get("/overview", s.handleAnalyticsOverview)
		r.Get("/insights", s.handleAnalyticsInsights)
		r.Get("/suppliers/{id}", s.handleAnalyticsSupplier)
	})

	return r
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.SystemStatus())
}

func (s *apiServer) handleJobsList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":      s.mgr.AllJobs(),
		"scheduled": s.mgr.ScheduledJobs(),
	})
}

func (s *apiServer) handleJobMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"metrics": s.mgr.Metrics(),
		"health":  s.mgr.Health(),
	})
}

func (s *apiServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.mgr.JobStatus(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *apiServer) handleJobRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runID, err := s.mgr.RunJobNow(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"run_id": runID,
		"status": "accepted",
	})
}

func (s *apiServer) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.mgr.CancelJob(id) {
		writeError(w, http.StatusConflict, "job not found or already terminal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": "cancelled"})
}

func (s *apiServer) handleAlertsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := supplychain.Filter{
		SupplierID: q.Get("supplier_id"),
		Type:       q.Get("type"),
		Severity:   supplychain.Severity(q.Get("severity")),
		Status:     supplychain.AlertStatus(q.Get("status")),
		Limit:      limit,
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": s.alerts.List(filter)})
}

func (s *apiServer) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.alerts.Statistics())
}

// handleAlertsEvaluate ingests a supplier snapshot, runs alert evaluation,
// and refreshes the analytics populations.
func (s *apiServer) handleAlertsEvaluate(w http.ResponseWriter, r *http.Request) {
	var snap snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created := s.alerts.ProcessSuppliers(r.Context(), snap.Suppliers)
	s.analytics.SetData(decodeSuppliers(snap.Suppliers), s.alerts.List(supplychain.Filter{}))
	writeJSON(w, http.StatusOK, map[string]any{
		"suppliers_processed": len(snap.Suppliers),
		"alerts_created":      created,
	})
}

func (s *apiServer) handleAlertAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.alerts.Acknowledge(id) {
		writeError(w, http.StatusConflict, "alert not found or not active")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alert_id": id, "status": "acknowledged"})
}

func (s *apiServer) handleAlertResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.alerts.Resolve(id) {
		writeError(w, http.StatusConflict, "alert not found or not resolvable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alert_id": id, "status": "resolved"})
}

func (s *apiServer) handleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.ComputeOverview())
}

func (s *apiServer) handleAnalyticsInsights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"insights": s.analytics.Insights()})
}

func (s *apiServer) handleAnalyticsSupplier(w http.ResponseWriter, r *http.Request) {
	ra, ok := s.analytics.SupplierRiskAnalysis(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "supplier not found")
		return
	}
	writeJSON(w, http.StatusOK, ra)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
