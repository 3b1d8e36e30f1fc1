package rbac

import (
	"context"
	"database/sql"
	"sync"

	"tradepay-platform/internal/review"
)

// Assignment scopes an admin to a trade category they may review.
type Assignment struct {
	AdminID  string `json:"admin_id" db:"admin_id"`
	Kind     string `json:"kind" db:"kind"`
	Category string `json:"category" db:"category"`
}

// AssignmentRepo resolves which categories an admin works, and which
// admins hold the superadmin role that bypasses category scoping.
type AssignmentRepo interface {
	HasAssignment(ctx context.Context, adminID, kind, category string) (bool, error)
	IsSuper(ctx context.Context, adminID string) (bool, error)
}

// CategoryAuthorizer is the review gate's authorization policy: admins
// may only decide trades in categories assigned to them; superadmins may
// decide anything.
type CategoryAuthorizer struct {
	repo AssignmentRepo
}

func NewCategoryAuthorizer(repo AssignmentRepo) *CategoryAuthorizer {
	return &CategoryAuthorizer{repo: repo}
}

func (a *CategoryAuthorizer) CanReview(ctx context.Context, adminID string, kind review.Kind, category string) (bool, error) {
	super, err := a.repo.IsSuper(ctx, adminID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	return a.repo.HasAssignment(ctx, adminID, string(kind), category)
}

/* ===================== MEMORY REPO ===================== */

// MemoryAssignmentRepo is an in-memory AssignmentRepo for tests and early
// development.
type MemoryAssignmentRepo struct {
	mu          sync.RWMutex
	assignments map[string]struct{}
	supers      map[string]struct{}
}

func NewMemoryAssignmentRepo() *MemoryAssignmentRepo {
	return &MemoryAssignmentRepo{
		assignments: make(map[string]struct{}),
		supers:      make(map[string]struct{}),
	}
}

func (r *MemoryAssignmentRepo) Assign(a Assignment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[assignmentKey(a.AdminID, a.Kind, a.Category)] = struct{}{}
}

func (r *MemoryAssignmentRepo) MakeSuper(adminID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.supers[adminID] = struct{}{}
}

func (r *MemoryAssignmentRepo) HasAssignment(ctx context.Context, adminID, kind, category string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.assignments[assignmentKey(adminID, kind, category)]
	return ok, nil
}

func (r *MemoryAssignmentRepo) IsSuper(ctx context.Context, adminID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.supers[adminID]
	return ok, nil
}

func assignmentKey(adminID, kind, category string) string {
	return adminID + "|" + kind + "|" + category
}

/* ===================== POSTGRES REPO ===================== */

// PostgresAssignmentRepo reads assignments from Postgres.
//
// Assumed tables:
// - admin_category_assignments (admin_id, kind, category;
//   PRIMARY KEY (admin_id, kind, category))
// - admins (id PK, role)
type PostgresAssignmentRepo struct {
	db *sql.DB
}

func NewPostgresAssignmentRepo(db *sql.DB) *PostgresAssignmentRepo {
	return &PostgresAssignmentRepo{db: db}
}

func (r *PostgresAssignmentRepo) HasAssignment(ctx context.Context, adminID, kind, category string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM admin_category_assignments
  WHERE admin_id = $1 AND kind = $2 AND category = $3
)
`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, adminID, kind, category).Scan(&ok)
	return ok, err
}

func (r *PostgresAssignmentRepo) IsSuper(ctx context.Context, adminID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM admins WHERE id = $1 AND role = $2)`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, adminID, RoleSuperAdmin).Scan(&ok)
	return ok, err
}
