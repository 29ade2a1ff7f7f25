package registration

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"caredesk.io/telehealth/internal/auth"
)

// RegisterRequest carries the intake form: account identity plus the
// health details captured at signup.
type RegisterRequest struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Password   string     `json:"password"`
	Phone      string     `json:"phone"`
	HealthInfo HealthInfo `json:"healthInfo"`
}

type HealthInfo struct {
	Age        int     `json:"age"`
	Height     float64 `json:"height"`
	Weight     float64 `json:"weight"`
	BloodGroup string  `json:"bloodGroup"`
	Allergies  string  `json:"allergies"`
}

// Service handles patient registration and credential checks.
type Service struct {
	repo PatientRepository
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo}
}

// Register validates the intake form and persists a new patient. The
// submitted name is split into first name and surname on the first space;
// missing allergies are recorded as "None".
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Patient, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, fmt.Errorf("name, email and password are required")
	}

	existing, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("a patient with email %s is already registered", req.Email)
	}

	firstName := req.Name
	surname := ""
	if idx := strings.Index(req.Name, " "); idx >= 0 {
		firstName = req.Name[:idx]
		surname = req.Name[idx+1:]
	}

	allergies := req.HealthInfo.Allergies
	if allergies == "" {
		allergies = "None"
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	patient := &Patient{
		ID:           uuid.New(),
		FirstName:    firstName,
		Surname:      surname,
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Age:          req.HealthInfo.Age,
		HeightCm:     req.HealthInfo.Height,
		WeightKg:     req.HealthInfo.Weight,
		BloodGroup:   req.HealthInfo.BloodGroup,
		Allergies:    allergies,
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, err
	}
	return patient, nil
}

// Authenticate checks a patient's portal credentials. Returns nil without
// error when the email is unknown or the password does not match.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Patient, error) {
	patient, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if patient == nil || !auth.CheckPasswordHash(password, patient.PasswordHash) {
		return nil, nil
	}
	return patient, nil
}

// GetByID fetches one patient record.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// ListAll fetches every registered patient, newest first.
func (s *Service) ListAll(ctx context.Context) ([]*Patient, error) {
	return s.repo.ListAll(ctx)
}
