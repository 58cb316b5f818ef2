package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/evodash/internal/discovery"
	"github.com/kalambet/evodash/internal/opslog"
	"github.com/kalambet/evodash/internal/specstore"
	"github.com/kalambet/evodash/internal/storage"
)

const (
	dashboardRecentRequests = 10
	dashboardOperations     = 20
)

type DashboardStats struct {
	TotalRequests int `json:"totalRequests"`
	Pending       int `json:"pending"`
	Processing    int `json:"processing"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Features      int `json:"features"`
	// ActiveFeatures counts features with status active.
	ActiveFeatures int `json:"activeFeatures"`
}

type DashboardData struct {
	Features       []discovery.Feature      `json:"features"`
	RecentRequests []storage.FeatureRequest `json:"recentRequests"`
	Stats          DashboardStats           `json:"stats"`
	Spec           *specstore.Document      `json:"spec"`
	Operations     []opslog.Entry           `json:"operations"`
	GeneratedAt    time.Time                `json:"generatedAt"`
}

func handleDashboardData(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := loadDashboard(r.Context(), deps)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load dashboard: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, data)
	}
}

// loadDashboard gathers every dashboard section concurrently. An unreadable
// spec document leaves Spec nil rather than failing the whole payload.
func loadDashboard(ctx context.Context, deps Deps) (DashboardData, error) {
	var (
		data   DashboardData
		counts map[storage.RequestStatus]int
	)
	data.Features = deps.Registry.List()
	data.Operations = deps.Ops.Recent(dashboardOperations)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data.RecentRequests, err = deps.Store.ListFeatureRequests("", dashboardRecentRequests)
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = deps.Store.CountFeatureRequests()
		return err
	})
	g.Go(func() error {
		doc, err := deps.Spec.Read()
		if err != nil {
			deps.Logger.Warn("dashboard: spec unavailable", "error", err)
			return nil
		}
		data.Spec = &doc
		return nil
	})
	if err := g.Wait(); err != nil {
		return DashboardData{}, err
	}

	for status, n := range counts {
		data.Stats.TotalRequests += n
		switch status {
		case storage.StatusPending:
			data.Stats.Pending = n
		case storage.StatusProcessing:
			data.Stats.Processing = n
		case storage.StatusCompleted:
			data.Stats.Completed = n
		case storage.StatusFailed:
			data.Stats.Failed = n
		}
	}
	data.Stats.Features = len(data.Features)
	for _, f := range data.Features {
		if f.Status == discovery.StatusActive {
			data.Stats.ActiveFeatures++
		}
	}
	data.GeneratedAt = time.Now().UTC()
	return data, nil
}
