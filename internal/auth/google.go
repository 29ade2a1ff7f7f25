package auth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"caredesk.io/telehealth/internal/config"
	"caredesk.io/telehealth/internal/store"
)

// ErrNotClinicStaff rejects a clinician login from outside the clinic's
// email domain.
var ErrNotClinicStaff = fmt.Errorf("you are not an authorized member of this clinic")

// Profile is the identity established by a completed Google login.
type Profile struct {
	Email string
	Name  string
	Role  store.Role
}

// GoogleVerifier completes the OAuth code flow. There is one redirect URL
// per role so the provider round-trip itself records which flow the user
// entered through.
type GoogleVerifier struct {
	patientConfig   *oauth2.Config
	clinicianConfig *oauth2.Config
	clinicianDomain string
}

func NewGoogleVerifier() *GoogleVerifier {
	cfg := func(role store.Role) *oauth2.Config {
		return &oauth2.Config{
			ClientID:     config.AppConfig.GoogleClientID,
			ClientSecret: config.AppConfig.GoogleSecret,
			RedirectURL:  fmt.Sprintf("%s/api/auth/google/%s/callback", config.AppConfig.OAuthBaseURL, role),
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		}
	}
	return &GoogleVerifier{
		patientConfig:   cfg(store.RolePatient),
		clinicianConfig: cfg(store.RoleClinician),
		clinicianDomain: config.AppConfig.ClinicianDomain,
	}
}

func (v *GoogleVerifier) configFor(role store.Role) (*oauth2.Config, error) {
	switch role {
	case store.RolePatient:
		return v.patientConfig, nil
	case store.RoleClinician:
		return v.clinicianConfig, nil
	}
	return nil, fmt.Errorf("unknown login role %q", role)
}

// LoginURL returns the provider consent URL for one role's flow.
func (v *GoogleVerifier) LoginURL(role store.Role, state string) (string, error) {
	cfg, err := v.configFor(role)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state), nil
}

// Exchange trades the callback code for the user's profile and applies the
// role gate: clinician logins must come from the configured clinic domain.
func (v *GoogleVerifier) Exchange(ctx context.Context, role store.Role, code string) (*Profile, error) {
	cfg, err := v.configFor(role)
	if err != nil {
		return nil, err
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}

	if role == store.RoleClinician && v.clinicianDomain != "" &&
		!strings.HasSuffix(info.Email, "@"+strings.TrimPrefix(v.clinicianDomain, "@")) {
		return nil, ErrNotClinicStaff
	}

	return &Profile{
		Email: info.Email,
		Name:  info.Name,
		Role:  role,
	}, nil
}
