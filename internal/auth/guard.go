package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/consensus/internal/models"
)

// GroupSource looks up user groups by id
type GroupSource interface {
	GetByID(ctx context.Context, id int64) (*models.UserGroup, error)
}

// Action names the administrative operation checked by ForbidSelfAction
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// Guard makes authorization decisions for a resolved principal
type Guard struct {
	groups GroupSource
}

func NewGuard(groups GroupSource) *Guard {
	return &Guard{groups: groups}
}

// RequireActiveGroup rejects principals whose group has been deactivated
func (g *Guard) RequireActiveGroup(p *models.Principal) error {
	if p == nil || !p.GroupActive {
		return models.Errorf(models.ErrForbidden, "your user group is inactive")
	}
	return nil
}

// ForbidSelfAction blocks the administrative paths from touching the
// caller's own account. Profile edit does not go through here.
func (g *Guard) ForbidSelfAction(p *models.Principal, targetID int64, action Action) error {
	return ForbidSelf(p, targetID, action)
}

// ForbidSelf is ForbidSelfAction without a Guard. Handlers call it before
// reading the body so the self check wins over field validation.
func ForbidSelf(p *models.Principal, targetID int64, action Action) error {
	if p != nil && p.ID == targetID {
		return models.Errorf(models.ErrForbidden, "you cannot %s your own account", action)
	}
	return nil
}

// RequireGroupExists fails with a ValidationError on userGroupId when the
// group is missing
func (g *Guard) RequireGroupExists(ctx context.Context, groupID int64) error {
	if groupID <= 0 {
		return models.NewValidationError("userGroupId", "user group does not exist")
	}

	if _, err := g.groups.GetByID(ctx, groupID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.NewValidationError("userGroupId", "user group does not exist")
		}
		return fmt.Errorf("failed to load user group: %w", err)
	}
	return nil
}
