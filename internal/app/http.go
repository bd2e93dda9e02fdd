package app

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confessd/pkg/logger"
	"confessd/pkg/store"
)

// Handler builds the HTTP surface: the webhook, liveness/readiness and
// metrics.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/webhook", a.webhookLiveness).Methods(http.MethodGet)
	r.HandleFunc("/webhook", a.webhookHandler).Methods(http.MethodPost)
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// webhookLiveness answers the payload-free GET probe. No side effects.
func (a *App) webhookLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// webhookHandler processes one platform update. The response is
// unconditionally 200 with a fixed body so the delivery system never
// reinterprets a slow or failed operation as a reason to retry.
func (a *App) webhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("webhook_body_read_failed", "error", err)
	} else {
		a.eng.HandleWebhook(body)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// startHTTP starts the HTTP server and returns a channel carrying a
// fatal server error, if any.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	a.srv = &http.Server{Addr: a.cfg.Addr(), Handler: a.Handler()}
	go func() {
		logger.Info("http_listening", "addr", a.cfg.Addr(), "version", a.version)
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
