package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tasktrack-api/internal/models"
	appErrors "github.com/noah-isme/tasktrack-api/pkg/errors"
	"github.com/noah-isme/tasktrack-api/pkg/export"
)

type taskRepository interface {
	List(ctx context.Context, filter models.TaskFilter) ([]models.Task, int, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Task, error)
	FindByID(ctx context.Context, id int64) (*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id int64) error
}

// ExportFile is a rendered task export.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// TaskService implements task CRUD for the owning user.
type TaskService struct {
	repo      taskRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewTaskService constructs a TaskService. cache may be nil.
func NewTaskService(repo taskRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *TaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TaskService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger, now: time.Now}
}

// List returns the owner's tasks. Results are cached per filter until the
// owner changes a task.
func (s *TaskService) List(ctx context.Context, filter models.TaskFilter) ([]models.Task, *models.Pagination, bool, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}

	key := taskListKey(filter)
	var result models.TaskListResult
	hit := s.cache.Get(ctx, key, &result)
	if !hit {
		tasks, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tasks")
		}
		result = models.TaskListResult{Tasks: tasks, Total: total}
		s.cache.Set(ctx, key, result, s.cacheTTL)
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: result.Total}
	return result.Tasks, pagination, hit, nil
}

// Get returns a task owned by ownerID. Tasks of other owners are reported as not found.
func (s *TaskService) Get(ctx context.Context, ownerID, id int64) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load task")
	}
	if task.OwnerID != ownerID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
	}
	return task, nil
}

// Create adds a task for ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID int64, req models.CreateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}
	status := req.Status
	if status == "" {
		status = models.TaskStatusTodo
	}
	task := &models.Task{
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		DueDate:     req.DueDate,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create task")
	}
	s.invalidate(ctx, ownerID)
	return task, nil
}

// Update replaces the mutable fields of a task.
func (s *TaskService) Update(ctx context.Context, ownerID, id int64, req models.UpdateTaskRequest) (*models.Task, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid task payload")
	}
	task, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	task.Title = req.Title
	task.Description = req.Description
	task.Status = req.Status
	task.DueDate = req.DueDate
	if err := s.repo.Update(ctx, task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update task")
	}
	s.invalidate(ctx, ownerID)
	return task, nil
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "task not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete task")
	}
	s.invalidate(ctx, ownerID)
	return nil
}

// Export renders every task of ownerID in the requested format.
func (s *TaskService) Export(ctx context.Context, ownerID int64, format string) (*ExportFile, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tasks")
	}

	data := export.Dataset{
		Title:   "Tasks",
		Headers: []string{"ID", "Title", "Status", "Due", "Created"},
		Rows:    make([][]string, 0, len(tasks)),
	}
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.UTC().Format("2006-01-02")
		}
		data.Rows = append(data.Rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			string(t.Status),
			due,
			t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	content, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("tasks-%s.%s", s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Content:     content,
	}, nil
}

func (s *TaskService) invalidate(ctx context.Context, ownerID int64) {
	s.cache.Invalidate(ctx, fmt.Sprintf("tasks:%d:*", ownerID))
}

func taskListKey(f models.TaskFilter) string {
	status := ""
	if f.Status != nil {
		status = string(*f.Status)
	}
	return fmt.Sprintf("tasks:%d:%s:%s:%d:%d", f.OwnerID, status, f.Search, f.Page, f.PageSize)
}
