package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
)

type UserRepository struct {
	db database.Querier
}

func NewUserRepository(db database.Querier) *UserRepository {
	return &UserRepository{db: db}
}

const userSelect = `
	SELECT u.id, u.user_group_id, u.username, u.password, u.first_name, u.last_name,
	       u.email, u.address, u.phone_number, u.avatar, u.avatar_path,
	       u.delete_flag, u.is_active, u.created_by, u.created_by_username,
	       u.modified_by, u.modified_by_username, u.created_date, u.modified_date,
	       g.id, g.name, g.description, g.is_active, g.created_date, g.modified_date
	FROM users u
	LEFT JOIN user_groups g ON g.id = u.user_group_id`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one userSelect row. The group is nil when the join found
// nothing.
func scanUser(scanner rowScanner) (*models.User, error) {
	var u models.User
	var (
		groupID       *int64
		groupName     *string
		groupDesc     *string
		groupActive   *int
		groupCreated  *time.Time
		groupModified *time.Time
	)

	err := scanner.Scan(
		&u.ID, &u.UserGroupID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Email, &u.Address, &u.PhoneNumber, &u.Avatar, &u.AvatarPath,
		&u.DeleteFlag, &u.IsActive, &u.CreatedBy, &u.CreatedByUsername,
		&u.ModifiedBy, &u.ModifiedByUsername, &u.CreatedDate, &u.ModifiedDate,
		&groupID, &groupName, &groupDesc, &groupActive, &groupCreated, &groupModified,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if groupID != nil {
		g := &models.UserGroup{ID: *groupID, ModifiedDate: groupModified}
		if groupName != nil {
			g.Name = *groupName
		}
		if groupDesc != nil {
			g.Description = *groupDesc
		}
		if groupActive != nil {
			g.IsActive = *groupActive
		}
		if groupCreated != nil {
			g.CreatedDate = *groupCreated
		}
		u.Group = g
	}

	return &u, nil
}

// GetByID returns a live user with its group
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := userSelect + ` WHERE u.id = $1 AND u.delete_flag = 0`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

// GetByUsername returns the live user holding username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := userSelect + ` WHERE u.username = $1 AND u.delete_flag = 0`
	return scanUser(r.db.QueryRow(ctx, query, username))
}

// GetByEmail returns the oldest live user with email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := userSelect + ` WHERE lower(u.email) = lower($1) AND u.delete_flag = 0 ORDER BY u.id LIMIT 1`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// UsernameTaken reports whether a live user other than excludeID holds username
func (r *UserRepository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND delete_flag = 0 AND id <> $2)`

	var taken bool
	if err := r.db.QueryRow(ctx, query, username, excludeID).Scan(&taken); err != nil {
		return false, database.MapPostgresError(err)
	}
	return taken, nil
}

// Create inserts user and sets its ID
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (user_group_id, username, password, first_name, last_name, email,
		                   address, phone_number, avatar, avatar_path, delete_flag, is_active,
		                   created_by, created_by_username, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		u.UserGroupID, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.Email,
		u.Address, u.PhoneNumber, u.Avatar, u.AvatarPath, u.DeleteFlag, u.IsActive,
		u.CreatedBy, u.CreatedByUsername, u.CreatedDate,
	).Scan(&u.ID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// Update writes every mutable column of a live user in one statement
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET user_group_id = $1, username = $2, password = $3, first_name = $4,
		                 last_name = $5, email = $6, address = $7, phone_number = $8,
		                 avatar = $9, avatar_path = $10, is_active = $11,
		                 modified_by = $12, modified_by_username = $13, modified_date = $14
		WHERE id = $15 AND delete_flag = 0`

	result, err := r.db.Exec(ctx, query,
		u.UserGroupID, u.Username, u.PasswordHash, u.FirstName,
		u.LastName, u.Email, u.Address, u.PhoneNumber,
		u.Avatar, u.AvatarPath, u.IsActive,
		u.ModifiedBy, u.ModifiedByUsername, u.ModifiedDate,
		u.ID,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword rotates the stored hash of a live user
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string, actor *models.Principal, at time.Time) error {
	query := `
		UPDATE users SET password = $1, modified_by = $2, modified_by_username = $3, modified_date = $4
		WHERE id = $5 AND delete_flag = 0`

	var actorID *int64
	var actorName string
	if actor != nil {
		actorID = &actor.ID
		actorName = actor.Username
	}

	result, err := r.db.Exec(ctx, query, hash, actorID, actorName, at, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SoftDelete sets delete_flag on a live user. Rows are never removed.
func (r *UserRepository) SoftDelete(ctx context.Context, id int64, actor *models.Principal, at time.Time) error {
	query := `
		UPDATE users SET delete_flag = 1, modified_by = $1, modified_by_username = $2, modified_date = $3
		WHERE id = $4 AND delete_flag = 0`

	var actorID *int64
	var actorName string
	if actor != nil {
		actorID = &actor.ID
		actorName = actor.Username
	}

	result, err := r.db.Exec(ctx, query, actorID, actorName, at, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", database.MapPostgresError(err))
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
