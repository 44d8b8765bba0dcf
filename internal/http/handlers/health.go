package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

const readyTimeout = 2 * time.Second

// Health is the liveness probe; it never touches dependencies.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Ready runs every registered check concurrently and answers 503 when any
// of them fails.
func (a *App) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(a.ReadyChecks))
	for name := range a.ReadyChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, check ReadyCheck) {
			defer wg.Done()
			if err := check(ctx); err != nil {
				results[i] = err.Error()
				return
			}
			results[i] = "ok"
		}(i, a.ReadyChecks[name])
	}
	wg.Wait()

	resp := readyResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for i, name := range names {
		resp.Checks[name] = results[i]
		if results[i] != "ok" {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	if status != http.StatusOK {
		a.Logger.Warn().Interface("checks", resp.Checks).Msg("readiness check failed")
	}
	a.json(w, status, resp)
}
