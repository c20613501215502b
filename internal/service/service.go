// Package service glues the pipeline together: it creates tasks, stores
// uploaded images, hands them to the analysis worker, and writes correlated
// results back as they arrive.
package service

import (
	"context"
	"fmt"
	"log"

	"github.com/eramir/facecheck/internal/correlate"
	"github.com/eramir/facecheck/internal/cv"
	"github.com/eramir/facecheck/internal/metrics"
	"github.com/eramir/facecheck/internal/task"
)

// Store is the persistence facade the service writes tasks through.
type Store interface {
	CreateTask(ctx context.Context) (*task.Task, error)
	AppendItems(ctx context.Context, items []task.Item) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	SetTaskError(ctx context.Context, id, message string) error
	SetItemVote(ctx context.Context, itemID int64, isGood *bool) error
	ListTasks(ctx context.Context, page, pageSize int) ([]task.Task, error)
}

// ImageStore persists raw image bytes under the key the worker reads.
type ImageStore interface {
	Put(filename string, data []byte) error
}

// Publisher submits analysis requests to the worker.
type Publisher interface {
	Submit(ctx context.Context, filename, taskID string) error
}

type TaskService struct {
	store     Store
	images    ImageStore
	publisher Publisher
}

func NewTaskService(store Store, images ImageStore, publisher Publisher) *TaskService {
	return &TaskService{
		store:     store,
		images:    images,
		publisher: publisher,
	}
}

// Create inserts a new empty task.
func (s *TaskService) Create(ctx context.Context) (*task.Task, error) {
	t, err := s.store.CreateTask(ctx)
	if err != nil {
		return nil, err
	}

	metrics.TasksCreated.Inc()
	return t, nil
}

// Submit stores one image of a task and publishes its analysis request.
// Any failure is recorded as the task's submission error; the task itself
// stays valid and queryable.
func (s *TaskService) Submit(ctx context.Context, taskID string, index int, data []byte) error {
	filename := cv.Filename(taskID, index)

	if err := s.images.Put(filename, data); err != nil {
		return s.failSubmission(ctx, taskID, err)
	}

	if err := s.publisher.Submit(ctx, filename, taskID); err != nil {
		return s.failSubmission(ctx, taskID, fmt.Errorf("failed to publish analysis request: %w", err))
	}

	metrics.ImagesSubmitted.Inc()
	return nil
}

func (s *TaskService) failSubmission(ctx context.Context, taskID string, err error) error {
	log.Printf("service: submission failed for task %s: %v", taskID, err)
	metrics.SubmissionsFailed.Inc()

	if storeErr := s.store.SetTaskError(ctx, taskID, err.Error()); storeErr != nil {
		log.Printf("service: failed to record submission error on task %s: %v", taskID, storeErr)
	}

	return err
}

// SaveResponses is the listener callback: it correlates a decoded response
// batch into task items and appends them in one transaction. Failures are
// contained here so the listener can acknowledge the batch either way.
func (s *TaskService) SaveResponses(ctx context.Context, batch []cv.Response) {
	items := correlate.Items(batch)
	if len(items) == 0 {
		return
	}

	if err := s.store.AppendItems(ctx, items); err != nil {
		log.Printf("service: failed to save %d items: %v", len(items), err)
		return
	}

	withMetrics, failed := 0, 0
	for i := range items {
		if items[i].Error != nil {
			failed++
		} else {
			withMetrics++
		}
	}
	metrics.RecordItemsWritten(withMetrics, failed)
}

// Get returns the current snapshot of a task with every item correlated so
// far.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Vote sets or clears the human quality vote on one item.
func (s *TaskService) Vote(ctx context.Context, itemID int64, isGood *bool) error {
	return s.store.SetItemVote(ctx, itemID, isGood)
}

// List returns one page of tasks for the admin panel.
func (s *TaskService) List(ctx context.Context, page, pageSize int) ([]task.Task, error) {
	return s.store.ListTasks(ctx, page, pageSize)
}
