package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/internal/repository"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
)

type memoryTaskRepo struct {
	mu        sync.Mutex
	tasks     map[int64]models.Task
	nextID    int64
	listCalls int
}

func newMemoryTaskRepo() *memoryTaskRepo {
	return &memoryTaskRepo{tasks: make(map[int64]models.Task)}
}

func (r *memoryTaskRepo) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []models.Task
	for _, t := range r.tasks {
		if t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryTaskRepo) ListByOwner(ctx context.Context, ownerID int64) ([]models.Task, error) {
	tasks, _, err := r.List(ctx, models.TaskFilter{OwnerID: ownerID})
	return tasks, err
}

func (r *memoryTaskRepo) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (r *memoryTaskRepo) Create(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	task.ID = r.nextID
	task.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.tasks[task.ID] = *task
	return nil
}

func (r *memoryTaskRepo) Update(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[task.ID]; !ok {
		return sql.ErrNoRows
	}
	r.tasks[task.ID] = *task
	return nil
}

func (r *memoryTaskRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.tasks, id)
	return nil
}

func newCachedTaskService(t *testing.T) (*TaskService, *memoryTaskRepo) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCacheService(repository.NewCacheRepository(client, "test:"), NewMetricsService(), time.Minute, nil, true)
	repo := newMemoryTaskRepo()
	return NewTaskService(repo, cache, time.Minute, nil, nil), repo
}

func TestTaskCreateDefaultsStatus(t *testing.T) {
	svc := NewTaskService(newMemoryTaskRepo(), nil, 0, nil, nil)
	task, err := svc.Create(context.Background(), 1, models.CreateTaskRequest{Title: "Write docs"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusTodo, task.Status)
	assert.Equal(t, int64(1), task.OwnerID)

	_, err = svc.Create(context.Background(), 1, models.CreateTaskRequest{})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestTaskOwnershipHidesForeignTasks(t *testing.T) {
	svc := NewTaskService(newMemoryTaskRepo(), nil, 0, nil, nil)
	ctx := context.Background()
	task, err := svc.Create(ctx, 1, models.CreateTaskRequest{Title: "mine"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, task.ID)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Update(ctx, 2, task.ID, models.UpdateTaskRequest{Title: "x", Status: models.TaskStatusDone})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	assert.True(t, errors.Is(svc.Delete(ctx, 2, task.ID), appErrors.ErrNotFound))
	require.NoError(t, svc.Delete(ctx, 1, task.ID))
}

func TestTaskListUsesCacheUntilWrite(t *testing.T) {
	svc, repo := newCachedTaskService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, models.CreateTaskRequest{Title: "one"})
	require.NoError(t, err)

	tasks, pagination, hit, err := svc.List(ctx, models.TaskFilter{OwnerID: 1})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, tasks, 1)
	assert.Equal(t, 1, pagination.TotalCount)

	_, _, hit, err = svc.List(ctx, models.TaskFilter{OwnerID: 1})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.listCalls)

	_, err = svc.Create(ctx, 1, models.CreateTaskRequest{Title: "two"})
	require.NoError(t, err)

	tasks, _, hit, err = svc.List(ctx, models.TaskFilter{OwnerID: 1})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, tasks, 2)
}

func TestTaskListRejectsUnknownStatus(t *testing.T) {
	svc := NewTaskService(newMemoryTaskRepo(), nil, 0, nil, nil)
	status := models.TaskStatus("LATER")
	_, _, _, err := svc.List(context.Background(), models.TaskFilter{OwnerID: 1, Status: &status})
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestTaskExport(t *testing.T) {
	svc := NewTaskService(newMemoryTaskRepo(), nil, 0, nil, nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, 1, models.CreateTaskRequest{Title: "Ship release"})
	require.NoError(t, err)

	file, err := svc.Export(ctx, 1, "csv")
	require.NoError(t, err)
	assert.Contains(t, file.ContentType, "text/csv")
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	assert.Contains(t, string(file.Content), "Ship release")

	file, err = svc.Export(ctx, 1, "pdf")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF-")))

	_, err = svc.Export(ctx, 1, "xlsx")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
