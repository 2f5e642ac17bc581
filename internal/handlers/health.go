package handlers

import (
	"context"
	"net/http"
	"os"
	"sort"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Latency   string           `json:"latency"`
	Timestamp string           `json:"timestamp"`
}

// Health pings the conversation log and the user directory.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	start := time.Now()
	results := h.chat.Ping(ctx)

	checks := make(map[string]Check, len(results))
	allHealthy := true
	for name, err := range results {
		if err != nil {
			h.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
			continue
		}
		checks[name] = Check{Status: "pass"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.JSON(w, statusCode, HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Latency:   time.Since(start).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RootResponse describes the API.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the API index endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	endpoints := []string{
		"GET /health", "GET /rooms", "GET /stats",
		"PUT /users/me", "GET /users", "GET /users/{id}",
		"GET /rooms/{id}/messages", "POST /rooms/{id}/messages",
		"GET /dm/{id}/messages", "POST /dm/{id}/messages",
		"GET /inbox",
		"GET /stream/rooms/{id}", "GET /stream/dm/{id}", "GET /stream/inbox",
	}
	sort.Strings(endpoints)
	h.JSON(w, http.StatusOK, RootResponse{
		Name:      "clubchat",
		Version:   version,
		Endpoints: endpoints,
	})
}
