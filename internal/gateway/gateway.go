// Package gateway exposes the monitor, watchlist, and notification store
// over a small REST API for a separate front end.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/stellarlinkco/groupwatch/internal/classifier"
	"github.com/stellarlinkco/groupwatch/internal/config"
	"github.com/stellarlinkco/groupwatch/internal/monitor"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

type Gateway struct {
	cfg           *config.Config
	monitor       *monitor.Monitor
	cls           classifier.Classifier
	watchlist     *store.WatchlistStore
	notifications *store.NotificationStore

	server *http.Server
	hub    *wsHub

	// monitorCtx outlives individual requests; a started monitor runs
	// until process exit.
	monitorCtx context.Context
}

func New(cfg *config.Config, m *monitor.Monitor, cls classifier.Classifier, wl *store.WatchlistStore, ns *store.NotificationStore) *Gateway {
	g := &Gateway{
		cfg:           cfg,
		monitor:       m,
		cls:           cls,
		watchlist:     wl,
		notifications: ns,
		hub:           newWSHub(),
	}
	m.Subscribe(g.hub.broadcast)
	return g
}

func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/groups/monitored", g.handleMonitoredGroups)
	mux.HandleFunc("POST /api/groups/add", g.handleAddGroup)
	mux.HandleFunc("POST /api/groups/remove", g.handleRemoveGroup)
	mux.HandleFunc("GET /api/notifications", g.handleListNotifications)
	mux.HandleFunc("GET /api/model/test", g.handleModelTest)
	mux.HandleFunc("POST /api/start", g.handleStart)
	mux.HandleFunc("POST /api/notifications/{id}/read", g.handleMarkRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", g.handleDeleteNotification)
	mux.HandleFunc("/ws", g.hub.handleWS)
	return withCORS(mux)
}

// Start begins serving; it does not block.
func (g *Gateway) Start(ctx context.Context) error {
	g.monitorCtx = ctx
	g.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port),
		Handler: g.Handler(),
	}

	go func() {
		log.Printf("[gateway] listening on %s", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
		}
	}()
	return nil
}

func (g *Gateway) Stop() error {
	g.hub.closeAll()
	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown gateway: %w", err)
		}
	}
	log.Printf("[gateway] stopped")
	return nil
}

// The front end is served from a different origin; allow all.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[gateway] encode response: %v", err)
	}
}

func (g *Gateway) handleMonitoredGroups(w http.ResponseWriter, r *http.Request) {
	wl, err := g.watchlist.Load()
	if err != nil {
		log.Printf("[gateway] load watchlist: %v", err)
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, wl.TargetGroups)
}

type groupRequest struct {
	Group string `json:"group"`
}

func decodeGroup(r *http.Request) (string, bool) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Group == "" {
		return "", false
	}
	return req.Group, true
}

func (g *Gateway) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := decodeGroup(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	added, err := g.monitor.AddGroup(group)
	if err != nil {
		log.Printf("[gateway] add group %q: %v", group, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": added})
}

func (g *Gateway) handleRemoveGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := decodeGroup(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
		return
	}
	removed, err := g.monitor.RemoveGroup(group)
	if err != nil {
		log.Printf("[gateway] remove group %q: %v", group, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": removed})
}

func (g *Gateway) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.notifications.List())
}

func (g *Gateway) handleModelTest(w http.ResponseWriter, r *http.Request) {
	reply, err := g.cls.TestConnection(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"model":   g.cfg.Model.Name,
			"error":   err.Error(),
			"status":  "API连接失败",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"model":    g.cfg.Model.Name,
		"response": reply,
		"status":   "API连接正常",
	})
}

func (g *Gateway) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := g.monitorCtx
	if ctx == nil {
		ctx = context.Background()
	}
	g.monitor.StartBackground(ctx)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (g *Gateway) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := g.notifications.MarkRead(id)
	if err != nil {
		log.Printf("[gateway] mark read %q: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

func (g *Gateway) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := g.notifications.Delete(id)
	if err != nil {
		log.Printf("[gateway] delete %q: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": ok})
}
