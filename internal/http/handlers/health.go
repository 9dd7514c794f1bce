package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueueDepths reports how many jobs wait in each lane.
func (a *App) QueueDepths(w http.ResponseWriter, r *http.Request) {
	if a.Queue == nil {
		a.json(w, http.StatusOK, map[string]any{"lanes": map[string]int{}})
		return
	}
	depths, err := a.Queue.Depths(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"lanes": depths})
}
