package repository

import (
	"context"
	"errors"

	"school-notification-service/internal/domain"
	"school-notification-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory is the read-only view over the school's user directory that this
// service consumes. The directory itself (users, enrolment, teaching
// assignments) is owned by the surrounding platform.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*domain.DirectoryUser, error)
	ActiveUserIDs(ctx context.Context, schoolID string) ([]string, error)
	ActiveUserIDsByRoles(ctx context.Context, schoolID string, roles []domain.Role) ([]string, error)
	ActiveUserIDsByBranches(ctx context.Context, schoolID string, branchIDs []string) ([]string, error)
	// Class/section lookups union enrolled students with staff assigned to
	// teach those classes/sections.
	ActiveUserIDsByClasses(ctx context.Context, schoolID string, classIDs []string) ([]string, error)
	ActiveUserIDsBySections(ctx context.Context, schoolID string, sectionIDs []string) ([]string, error)
}

type pgDirectory struct {
	db *pgxpool.Pool
}

func NewDirectory(db *pgxpool.Pool) Directory {
	return &pgDirectory{db: db}
}

func (p *pgDirectory) GetUser(ctx context.Context, userID string) (*domain.DirectoryUser, error) {
	query := `
		SELECT id, school_id, branch_id, role, status, first_name, last_name, email, phone
		FROM users
		WHERE id = $1
	`

	var (
		u    domain.DirectoryUser
		role string
	)
	err := p.db.QueryRow(ctx, query, userID).Scan(
		&u.ID,
		&u.SchoolID,
		&u.BranchID,
		&role,
		&u.Status,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (p *pgDirectory) ActiveUserIDs(ctx context.Context, schoolID string) ([]string, error) {
	query := `
		SELECT id FROM users
		WHERE school_id = $1 AND status = 'ACTIVE'
	`
	return p.queryIDs(ctx, query, schoolID)
}

func (p *pgDirectory) ActiveUserIDsByRoles(ctx context.Context, schoolID string, roles []domain.Role) ([]string, error) {
	query := `
		SELECT id FROM users
		WHERE school_id = $1 AND status = 'ACTIVE' AND role = ANY($2)
	`
	return p.queryIDs(ctx, query, schoolID, rolesToStrings(roles))
}

func (p *pgDirectory) ActiveUserIDsByBranches(ctx context.Context, schoolID string, branchIDs []string) ([]string, error) {
	query := `
		SELECT id FROM users
		WHERE school_id = $1 AND status = 'ACTIVE' AND branch_id = ANY($2)
	`
	return p.queryIDs(ctx, query, schoolID, branchIDs)
}

func (p *pgDirectory) ActiveUserIDsByClasses(ctx context.Context, schoolID string, classIDs []string) ([]string, error) {
	query := `
		SELECT u.id FROM users u
		WHERE u.school_id = $1 AND u.status = 'ACTIVE'
		  AND (
			EXISTS (
				SELECT 1 FROM students s
				WHERE s.user_id = u.id AND s.class_id = ANY($2)
			)
			OR EXISTS (
				SELECT 1 FROM teacher_classes tc
				WHERE tc.user_id = u.id AND tc.class_id = ANY($2)
			)
		  )
	`
	return p.queryIDs(ctx, query, schoolID, classIDs)
}

func (p *pgDirectory) ActiveUserIDsBySections(ctx context.Context, schoolID string, sectionIDs []string) ([]string, error) {
	query := `
		SELECT u.id FROM users u
		WHERE u.school_id = $1 AND u.status = 'ACTIVE'
		  AND (
			EXISTS (
				SELECT 1 FROM students s
				WHERE s.user_id = u.id AND s.section_id = ANY($2)
			)
			OR EXISTS (
				SELECT 1 FROM teacher_sections ts
				WHERE ts.user_id = u.id AND ts.section_id = ANY($2)
			)
		  )
	`
	return p.queryIDs(ctx, query, schoolID, sectionIDs)
}

func (p *pgDirectory) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
