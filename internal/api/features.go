package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/evodash/internal/apperr"
	"github.com/kalambet/evodash/internal/storage"
)

type submitRequest struct {
	Description string `json:"description"`
}

func handleSubmitRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		res, err := deps.Submitter.Submit(r.Context(), req.Description)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleListRequests(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := storage.RequestStatus(r.URL.Query().Get("status"))
		if status != "" && !status.Valid() {
			writeError(w, apperr.Validation("unknown status %q", status))
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		requests, err := deps.Store.ListFeatureRequests(status, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feature requests: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
	}
}

func handleGetRequest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		fr, err := deps.Store.GetFeatureRequest(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "feature request not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get feature request: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, fr)
	}
}

func handleListFeatures(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Registry.List())
	}
}

func handleRefreshFeatures(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		features, err := deps.Registry.Refresh(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to scan components: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, features)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
