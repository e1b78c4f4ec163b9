package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"tcc-gateway/internal/models"
	"tcc-gateway/internal/tcc"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 10000
)

// parseSampleQuery parses the history query parameters from an HTTP request
func parseSampleQuery(r *http.Request) (models.SampleQuery, error) {
	q := models.SampleQuery{
		Limit: defaultHistoryLimit,
	}

	if startTimeStr := r.URL.Query().Get("start_time"); startTimeStr != "" {
		t, err := time.Parse(time.RFC3339, startTimeStr)
		if err != nil {
			return q, fmt.Errorf("invalid start_time format: %v", err)
		}
		q.StartTime = &t
	}

	if endTimeStr := r.URL.Query().Get("end_time"); endTimeStr != "" {
		t, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			return q, fmt.Errorf("invalid end_time format: %v", err)
		}
		q.EndTime = &t
	}

	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return q, fmt.Errorf("end_time is before start_time")
	}

	if name := r.URL.Query().Get("parameter"); name != "" {
		if _, ok := tcc.ParseParameter(name); !ok {
			return q, fmt.Errorf("unknown parameter %q", name)
		}
		q.Parameter = name
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return q, fmt.Errorf("invalid limit format: %q", limitStr)
		}
		q.Limit = min(limit, maxHistoryLimit)
	}

	return q, nil
}

// respondWithError sends an error response
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
