package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/pkg/password"
)

func testHasher() *password.Hasher {
	return password.NewHasher(bcrypt.MinCost)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryRefreshRepo mirrors the SQL repository semantics in memory.
type memoryRefreshRepo struct {
	mu      sync.Mutex
	records map[string]models.RefreshToken
	listErr error
	deleted []string
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{records: make(map[string]models.RefreshToken)}
}

func (r *memoryRefreshRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	r.records[token.ID] = *token
	return nil
}

func (r *memoryRefreshRepo) sorted(filter func(models.RefreshToken) bool) []models.RefreshToken {
	out := make([]models.RefreshToken, 0, len(r.records))
	for _, rec := range r.records {
		if filter(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (r *memoryRefreshRepo) FindByLookupKey(ctx context.Context, lookupKey string) ([]models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.sorted(func(t models.RefreshToken) bool { return t.LookupKey == lookupKey }), nil
}

func (r *memoryRefreshRepo) ListAll(ctx context.Context) ([]models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.sorted(func(models.RefreshToken) bool { return true }), nil
}

func (r *memoryRefreshRepo) MarkRevoked(ctx context.Context, id string, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevokedAt = &revokedAt
	r.records[id] = rec
	return nil
}

func (r *memoryRefreshRepo) RevokeByUserID(ctx context.Context, userID int64, revokedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.UserID == userID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &revokedAt
			r.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (r *memoryRefreshRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *memoryRefreshRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.records {
		if rec.UserID == userID {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryRefreshRepo) Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[oldID]
	if !ok || rec.Revoked {
		return sql.ErrNoRows
	}
	rec.Revoked = true
	rec.RevokedAt = &revokedAt
	r.records[oldID] = rec
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	r.records[next.ID] = *next
	return nil
}

func (r *memoryRefreshRepo) get(id string) (models.RefreshToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

func (r *memoryRefreshRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// memoryUserRepo stores users keyed by id.
type memoryUserRepo struct {
	mu        sync.Mutex
	users     map[int64]*models.User
	nextID    int64
	createErr error
	deleteErr error
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]*models.User)}
}

func (r *memoryUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *u
	return &clone, nil
}

func (r *memoryUserRepo) List(ctx context.Context, page, pageSize int) ([]models.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	user.ID = r.nextID
	user.Email = strings.ToLower(user.Email)
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryUserRepo) UpdateRole(ctx context.Context, id int64, role models.UserRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (r *memoryUserRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.users, id)
	return nil
}

// recordingAudit captures events synchronously.
type recordingAudit struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (a *recordingAudit) Record(event AuditEvent) {
	a.mu.Lock()
	a.events = append(a.events, event)
	a.mu.Unlock()
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.events))
	for i, e := range a.events {
		out[i] = e.Action
	}
	return out
}
