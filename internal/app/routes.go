package app

// registerRoutes sets up all HTTP handlers for the application.
func (a *App) registerRoutes() {
	a.Mux.HandleFunc("GET /api/status", a.handleStatus)
	a.Mux.HandleFunc("GET /api/runs", a.handleRuns)
	a.Mux.HandleFunc("GET /api/runs/{id}", a.handleRun)
	if a.Room != nil {
		a.Mux.Handle("GET /ws", a.Room)
	}
}
