package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
)

type UserGroupRepository struct {
	db database.Querier
}

func NewUserGroupRepository(db database.Querier) *UserGroupRepository {
	return &UserGroupRepository{db: db}
}

func (r *UserGroupRepository) GetByID(ctx context.Context, id int64) (*models.UserGroup, error) {
	query := `
		SELECT id, name, description, is_active, created_date, modified_date
		FROM user_groups WHERE id = $1`

	var g models.UserGroup
	err := r.db.QueryRow(ctx, query, id).Scan(
		&g.ID, &g.Name, &g.Description, &g.IsActive, &g.CreatedDate, &g.ModifiedDate,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &g, nil
}

// GetByName is used by bootstrap-admin to find or create the admin group
func (r *UserGroupRepository) GetByName(ctx context.Context, name string) (*models.UserGroup, error) {
	query := `
		SELECT id, name, description, is_active, created_date, modified_date
		FROM user_groups WHERE name = $1 ORDER BY id LIMIT 1`

	var g models.UserGroup
	err := r.db.QueryRow(ctx, query, name).Scan(
		&g.ID, &g.Name, &g.Description, &g.IsActive, &g.CreatedDate, &g.ModifiedDate,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &g, nil
}

func (r *UserGroupRepository) Create(ctx context.Context, g *models.UserGroup) error {
	query := `
		INSERT INTO user_groups (name, description, is_active, created_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if g.CreatedDate.IsZero() {
		g.CreatedDate = time.Now()
	}
	err := r.db.QueryRow(ctx, query, g.Name, g.Description, g.IsActive, g.CreatedDate).Scan(&g.ID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

// SetActive flips the group active flag. Members of an inactive group can
// no longer log in.
func (r *UserGroupRepository) SetActive(ctx context.Context, id int64, active bool) error {
	flag := models.FlagOff
	if active {
		flag = models.FlagOn
	}

	result, err := r.db.Exec(ctx,
		`UPDATE user_groups SET is_active = $1, modified_date = $2 WHERE id = $3`,
		flag, time.Now(), id,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
