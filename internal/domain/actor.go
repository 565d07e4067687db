package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor is a marketplace participant. Never hard-deleted; Blacklisted is the compliance flag.
type Actor struct {
	ActorID       uuid.UUID `gorm:"column:actor_id;type:uuid;primaryKey" json:"actor_id"`
	Username      string    `gorm:"column:username;uniqueIndex;not null" json:"username"`
	PasswordHash  string    `gorm:"column:password_hash;not null" json:"-"`
	Name          string    `gorm:"column:name;not null" json:"name"`
	Organization  string    `gorm:"column:organization" json:"organization"`
	Role          string    `gorm:"column:role;type:varchar(20);not null;index" json:"role"`
	WalletBalance float64   `gorm:"column:wallet_balance;type:decimal(18,2);not null;default:0" json:"wallet_balance"`
	Credits       int64     `gorm:"column:credits;not null;default:0" json:"credits"`
	Score         float64   `gorm:"column:score;type:decimal(18,2);not null;default:0" json:"score"`
	Blacklisted   bool      `gorm:"column:blacklisted;not null;default:false" json:"blacklisted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Actor) TableName() string {
	return "Actors"
}

func (a *Actor) BeforeCreate(tx *gorm.DB) error {
	if a.ActorID == uuid.Nil {
		a.ActorID = uuid.New()
	}
	return nil
}

// DisplayOrganization is the organization, falling back to the name.
func (a *Actor) DisplayOrganization() string {
	if a.Organization != "" {
		return a.Organization
	}
	return a.Name
}
