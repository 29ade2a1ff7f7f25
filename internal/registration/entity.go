package registration

import (
	"time"

	"github.com/google/uuid"
)

// Patient is one registered patient's demographic and intake record.
type Patient struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	FirstName    string    `json:"name" gorm:"not null"`
	Surname      string    `json:"surname"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	Phone        string    `json:"phone_number"`
	Age          int       `json:"age"`
	HeightCm     float64   `json:"height"`
	WeightKg     float64   `json:"weight"`
	BloodGroup   string    `json:"blood_group"`
	Allergies    string    `json:"prev_allergy"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}
