package repositories

import (
	"context"

	"github.com/BradenHooton/consensus/internal/database"
	"github.com/BradenHooton/consensus/internal/models"
)

// LoginLogRepository records successful logins
type LoginLogRepository struct {
	db database.Querier
}

func NewLoginLogRepository(db database.Querier) *LoginLogRepository {
	return &LoginLogRepository{db: db}
}

func (r *LoginLogRepository) Create(ctx context.Context, entry *models.LoginLog) error {
	query := `
		INSERT INTO login_logs (user_id, username, ip_address, user_agent, created_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		entry.UserID, entry.Username, entry.IPAddress, entry.UserAgent, entry.CreatedDate,
	).Scan(&entry.ID)

	return database.MapPostgresError(err)
}
