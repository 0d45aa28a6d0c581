// internal/handlers/health.go
package handlers

import (
	"encoding/json"
	"net/http"
)

type healthReport struct {
	Status       string `json:"status"`
	Online       int    `json:"online"`
	RoomsWaiting int    `json:"rooms_waiting"`
	RoomsPlaying int    `json:"rooms_playing"`
	PortsUsed    int    `json:"ports_used"`
	PortsFree    int    `json:"ports_free"`
}

// HealthHandler reports live session, room and port counts.
func (d *Dispatcher) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := d.rooms.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthReport{
			Status:       "ok",
			Online:       d.sessions.Online(),
			RoomsWaiting: stats.Waiting,
			RoomsPlaying: stats.Playing,
			PortsUsed:    stats.PortsUsed,
			PortsFree:    stats.PortsFree,
		})
	}
}
