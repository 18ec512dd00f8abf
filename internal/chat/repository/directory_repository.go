package repository

import (
	"context"

	"campus_chat_service/internal/chat/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// DirectoryRepository roster and role lookup owned by the school admin modules.
// Tables: users(id, role), class_enrollments(class_id, user_id).
type DirectoryRepository interface {
	StudentsInClasses(ctx context.Context, classIDs []string) ([]string, error)
	NonAdminUsers(ctx context.Context, userIDs []string) ([]string, error)
}

type directoryRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDirectoryRepository create a DirectoryRepository
func NewPostgresDirectoryRepository(db *pgxpool.Pool) DirectoryRepository {
	return &directoryRepository{db: db}
}

// StudentsInClasses enrolled students of the given classes
func (r *directoryRepository) StudentsInClasses(ctx context.Context, classIDs []string) ([]string, error) {
	if len(classIDs) == 0 {
		return []string{}, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT u.id FROM class_enrollments e
		 JOIN users u ON u.id = e.user_id
		 WHERE e.class_id = ANY($1) AND u.role = $2`,
		classIDs, string(domain.RoleStudent))
	if err != nil {
		return nil, domain.NewTransientError("query class roster", err)
	}
	return collectIDs(rows)
}

// NonAdminUsers keep the ids that exist and are not administrators
func (r *directoryRepository) NonAdminUsers(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	rows, err := r.db.Query(ctx,
		"SELECT id FROM users WHERE id = ANY($1) AND role <> $2",
		userIDs, string(domain.RoleAdmin))
	if err != nil {
		return nil, domain.NewTransientError("query users", err)
	}
	return collectIDs(rows)
}

func collectIDs(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewTransientError("scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewTransientError("read rows", err)
	}
	return ids, nil
}
