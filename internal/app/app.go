// Package app implements the web server and API layer exposing live telemetry and the
// recorded runs of the robot.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"TerraNav/internal/recorder"
	"TerraNav/internal/telemetry"
	"TerraNav/internal/util"
)

// App bundles the HTTP server with the telemetry sources it serves.
type App struct {
	Hub      *telemetry.Hub
	Room     *telemetry.Room
	Recorder *recorder.Recorder
	Mux      *http.ServeMux
	Server   *http.Server

	mu      sync.Mutex
	stopped bool
}

// NewApp wires the routes. room and rec may be nil when streaming or recording is disabled.
func NewApp(hub *telemetry.Hub, room *telemetry.Room, rec *recorder.Recorder) (*App, error) {
	if hub == nil {
		return nil, fmt.Errorf("[app] nil telemetry hub")
	}
	a := &App{
		Hub:      hub,
		Room:     room,
		Recorder: rec,
		Mux:      http.NewServeMux(),
	}
	a.registerRoutes()
	return a, nil
}

// Start launches the web server and blocks until stopped.
func (a *App) Start(addr string) error {
	if addr == "" {
		util.Info("[app] app server not started (empty address)")
		return nil
	}
	if a == nil {
		return fmt.Errorf("[app] Start called on nil receiver")
	}

	addr = strings.TrimPrefix(addr, "http://")
	addr = strings.TrimPrefix(addr, "https://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.Server = srv
	a.mu.Unlock()

	util.Info("[app] web server listening at http://%s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("[app] HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the web server. The recorder belongs to the caller.
func (a *App) Stop() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.stopped = true
	srv := a.Server
	a.mu.Unlock()
	if srv == nil {
		return
	}
	util.Info("[app] shutting down web server...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		util.Warn("[app] HTTP server shutdown error: %v", err)
	} else {
		util.Info("[app] web server stopped cleanly")
	}
}
