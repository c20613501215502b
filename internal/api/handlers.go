// Package api exposes the HTTP surface: task creation and polling, item
// votes, and the admin panel endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eramir/facecheck/internal/dashboard"
	"github.com/eramir/facecheck/internal/httputil"
	"github.com/eramir/facecheck/internal/middleware"
	"github.com/eramir/facecheck/internal/store"
	"github.com/eramir/facecheck/internal/task"
)

// maxUploadBytes caps the in-memory part of a multipart upload.
const maxUploadBytes = 32 << 20

// submitTimeout bounds each background image submission, covering image
// storage plus broker publish including pool acquisition.
const submitTimeout = 30 * time.Second

// TaskService is the orchestration layer the handlers drive.
type TaskService interface {
	Create(ctx context.Context) (*task.Task, error)
	Submit(ctx context.Context, taskID string, index int, data []byte) error
	Get(ctx context.Context, id string) (*task.Task, error)
	Vote(ctx context.Context, itemID int64, isGood *bool) error
	List(ctx context.Context, page, pageSize int) ([]task.Task, error)
}

type API struct {
	service TaskService
	mux     *http.ServeMux
}

type VoteRequest struct {
	IsGood *bool `json:"is_good"`
}

func NewAPI(service TaskService) *API {
	api := &API{
		service: service,
		mux:     http.NewServeMux(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/task", a.handleTask)
	a.mux.HandleFunc("/api/task/", a.handleTaskSubpath)
	a.mux.HandleFunc("/api/tasks", a.listTasks)

	dash := dashboard.NewDashboard(a.service)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetRecentTasks)

	a.mux.Handle("/metrics", promhttp.Handler())
	a.mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	})

	fs := http.FileServer(http.Dir("./web"))
	a.mux.Handle("/", fs)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.MetricsMiddleware(a.mux).ServeHTTP(w, r)
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.createTask(w, r)
}

// createTask accepts a multipart upload with one or more "file" parts,
// creates the task, and submits each image in the background. The response
// carries the fresh task with an empty item list; results accumulate as
// the worker reports back.
func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteJSONError(w, "Invalid multipart request", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		httputil.WriteJSONError(w, "At least one file is required", http.StatusBadRequest)
		return
	}

	images := make([][]byte, 0, len(files))
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			httputil.WriteJSONError(w, "Failed to read upload", http.StatusBadRequest)
			return
		}

		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			httputil.WriteJSONError(w, "Failed to read upload", http.StatusBadRequest)
			return
		}

		images = append(images, data)
	}

	t, err := a.service.Create(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	for i, data := range images {
		go func(index int, data []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
			defer cancel()

			// Submission failures are recorded on the task itself; the
			// client sees them on the next poll.
			_ = a.service.Submit(ctx, t.ID, index, data)
		}(i, data)
	}

	httputil.WriteJSON(w, t, http.StatusCreated)
}

func (a *API) handleTaskSubpath(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/task/items/") {
		a.voteItem(w, r)
		return
	}

	a.getTask(w, r)
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/task/")
	if taskID == "" || strings.Contains(taskID, "/") {
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	t, err := a.service.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
			return
		}

		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, t, http.StatusOK)
}

func (a *API) voteItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/task/items/")
	idPart, ok := strings.CutSuffix(rest, "/vote")
	if !ok {
		httputil.WriteJSONError(w, "Unknown item endpoint", http.StatusNotFound)
		return
	}

	itemID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		httputil.WriteJSONError(w, "Invalid item ID", http.StatusBadRequest)
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	if err := a.service.Vote(r.Context(), itemID, req.IsGood); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteJSONError(w, "Item not found", http.StatusNotFound)
			return
		}

		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	tasks, err := a.service.List(r.Context(), page, pageSize)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	httputil.WriteJSON(w, tasks, http.StatusOK)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}

	return n
}
