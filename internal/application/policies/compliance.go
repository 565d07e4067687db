// Package policies holds governance rules that span more than one actor.
package policies

import (
	"errors"
	"fmt"

	"greencoin-backend/internal/domain"
	"greencoin-backend/internal/pkg/apperror"
	"greencoin-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrCannotBlacklistSelf = apperror.New(apperror.KindConflict, "CANNOT_BLACKLIST_SELF", "Regulators cannot change their own compliance flag")
	ErrLastRegulator       = apperror.New(apperror.KindConflict, "LAST_REGULATOR", "At least one active regulator must remain")
)

type BlacklistParams struct {
	ActorID     uuid.UUID // regulator performing the change
	TargetID    uuid.UUID
	Blacklisted bool
}

// ValidateBlacklist checks a compliance flag change before it is applied.
// Lifting a flag is always allowed; setting one must leave an active regulator behind.
func ValidateBlacklist(db *gorm.DB, p BlacklistParams) error {
	if p.ActorID == p.TargetID {
		return ErrCannotBlacklistSelf
	}
	var target domain.Actor
	err := db.Where("actor_id = ?", p.TargetID).First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("Actor")
	}
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}
	if !p.Blacklisted || target.Role != constants.Regulator || target.Blacklisted {
		return nil
	}
	var active int64
	if err := db.Model(&domain.Actor{}).
		Where("role = ? AND blacklisted = ? AND actor_id <> ?", constants.Regulator, false, p.TargetID).
		Count(&active).Error; err != nil {
		return fmt.Errorf("count regulators: %w", err)
	}
	if active == 0 {
		return ErrLastRegulator
	}
	return nil
}
