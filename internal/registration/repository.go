package registration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PatientRepository defines the interface for patient data operations.
type PatientRepository interface {
	Create(ctx context.Context, patient *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByEmail(ctx context.Context, email string) (*Patient, error)
	ListAll(ctx context.Context) ([]*Patient, error)
}

type gormPatientRepository struct {
	db *gorm.DB
}

func NewPatientRepository(db *gorm.DB) PatientRepository {
	return &gormPatientRepository{db: db}
}

func (r *gormPatientRepository) Create(ctx context.Context, patient *Patient) error {
	if err := r.db.WithContext(ctx).Create(patient).Error; err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

func (r *gormPatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var patient Patient
	err := r.db.WithContext(ctx).First(&patient, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query patient: %w", err)
	}
	return &patient, nil
}

func (r *gormPatientRepository) FindByEmail(ctx context.Context, email string) (*Patient, error) {
	var patient Patient
	err := r.db.WithContext(ctx).First(&patient, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query patient by email: %w", err)
	}
	return &patient, nil
}

func (r *gormPatientRepository) ListAll(ctx context.Context) ([]*Patient, error) {
	var patients []*Patient
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}
