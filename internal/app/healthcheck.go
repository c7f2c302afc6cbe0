package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/nodeflow/internal/ctxlog"
	"github.com/vk/nodeflow/internal/localexecutor"
)

const healthShutdownTimeout = 5 * time.Second

// jobReport is the JSON form of a local job on the /jobs endpoint.
type jobReport struct {
	Name      string         `json:"name"`
	Directory string         `json:"directory"`
	Failed    bool           `json:"failed"`
	Batches   map[string]int `json:"batches"`
}

func newJobReport(j *localexecutor.Job) jobReport {
	batches := make(map[string]int)
	for status, n := range j.Statuses() {
		batches[status.String()] = n
	}
	return jobReport{Name: j.Name(), Directory: j.Directory(), Failed: j.Failed(), Batches: batches}
}

// healthHandler reports OK with the number of running and failed jobs.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(a.ctx).Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr)
	pool := a.local.Pool()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK running=%d failed=%d\n", len(pool.Jobs()), len(pool.FailedJobs()))
}

// jobsHandler lists running and failed local jobs with their batch states.
func (a *App) jobsHandler(w http.ResponseWriter, _ *http.Request) {
	pool := a.local.Pool()
	body := struct {
		Running []jobReport `json:"running"`
		Failed  []jobReport `json:"failed"`
	}{Running: []jobReport{}, Failed: []jobReport{}}
	for _, j := range pool.Jobs() {
		body.Running = append(body.Running, newJobReport(j))
	}
	for _, j := range pool.FailedJobs() {
		body.Failed = append(body.Failed, newJobReport(j))
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		ctxlog.FromContext(a.ctx).Warn("Writing job report failed.", "error", err)
	}
}

// startHealthCheckServer serves /health and /jobs on the configured port.
func (a *App) startHealthCheckServer() {
	logger := ctxlog.FromContext(a.ctx)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.healthHandler)
	mux.HandleFunc("GET /jobs", a.jobsHandler)

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	a.httpServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: healthShutdownTimeout}

	go func() {
		logger.Info("Health check server starting.", "address", "http://localhost"+addr+"/health")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed.", "error", err)
		}
	}()
}

func (a *App) closeHealthCheckServer() error {
	if a.httpServer == nil {
		return nil
	}
	logger := ctxlog.FromContext(a.ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), healthShutdownTimeout)
	defer cancel()

	logger.Debug("Shutting down health check server.")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed.", "error", err)
		return err
	}
	return nil
}
