// Package dashboard implements the JSON API behind the admin panel: task
// aggregates and a recent-task feed.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/eramir/facecheck/internal/httputil"
	"github.com/eramir/facecheck/internal/task"
)

// statsWindow bounds how many recent tasks the aggregates are computed over.
const statsWindow = 500

type TaskLister interface {
	List(ctx context.Context, page, pageSize int) ([]task.Task, error)
}

type Dashboard struct {
	tasks TaskLister
}

type Stats struct {
	TotalTasks       int       `json:"total_tasks"`
	FailedTasks      int       `json:"failed_tasks"`
	PendingTasks     int       `json:"pending_tasks"`
	TotalItems       int       `json:"total_items"`
	ItemsWithMetrics int       `json:"items_with_metrics"`
	ItemsWithErrors  int       `json:"items_with_errors"`
	ItemsWithGlasses int       `json:"items_with_glasses"`
	LastUpdated      time.Time `json:"last_updated"`
}

type RecentTask struct {
	TaskID    string    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
	Items     int       `json:"items"`
	Error     *string   `json:"error,omitempty"`
}

func NewDashboard(tasks TaskLister) *Dashboard {
	return &Dashboard{tasks: tasks}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	tasks, err := d.tasks.List(r.Context(), 1, statsWindow)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats := Stats{
		TotalTasks:  len(tasks),
		LastUpdated: time.Now(),
	}

	for i := range tasks {
		t := &tasks[i]
		if t.Error != nil {
			stats.FailedTasks++
		}
		if t.Error == nil && len(t.Items) == 0 {
			stats.PendingTasks++
		}

		stats.TotalItems += len(t.Items)
		for j := range t.Items {
			item := &t.Items[j]
			if item.Error != nil {
				stats.ItemsWithErrors++
				continue
			}

			stats.ItemsWithMetrics++
			if item.WithGlasses {
				stats.ItemsWithGlasses++
			}
		}
	}

	httputil.WriteJSON(w, stats, http.StatusOK)
}

func (d *Dashboard) GetRecentTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := d.tasks.List(r.Context(), 1, statsWindow)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	history := []RecentTask{}

	for i := range tasks {
		t := &tasks[i]
		if t.CreatedAt.Before(cutoff) {
			continue
		}

		history = append(history, RecentTask{
			TaskID:    t.ID,
			CreatedAt: t.CreatedAt,
			Items:     len(t.Items),
			Error:     t.Error,
		})
	}

	httputil.WriteJSON(w, history, http.StatusOK)
}
