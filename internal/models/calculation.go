package models

import (
	"time"

	"github.com/google/uuid"
)

// Calculation is one append-only record of the calculation forest.
// Roots carry a user supplied number in Result; every other record
// references an earlier record through ParentID.
type Calculation struct {
	ID        int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uuid.UUID    `gorm:"type:uuid;index;not null" json:"user_id"`
	User      User         `gorm:"foreignKey:UserID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	ParentID  *int64       `gorm:"index" json:"parent_id"`
	Parent    *Calculation `gorm:"foreignKey:ParentID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT" json:"-"`
	IsRoot    bool         `gorm:"not null;default:false" json:"is_root"`
	Operator  *string      `gorm:"type:varchar(1)" json:"operator"`
	Operand   *float64     `json:"operand"`
	Result    float64      `gorm:"not null" json:"result"`
	CreatedAt time.Time    `gorm:"index" json:"created_at"`
}

// All returns every model that takes part in migrations.
func All() []any {
	return []any{
		&User{},
		&Calculation{},
	}
}
