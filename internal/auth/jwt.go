package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"caredesk.io/telehealth/internal/config"
	"caredesk.io/telehealth/internal/store"
)

// GenerateJWT issues a session token carrying the subject's identity and
// role. The role claim is what the capability middleware gates on.
func GenerateJWT(subject string, role store.Role) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": string(role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour * 24).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateJWT returns the subject and role encoded in a session token.
func ValidateJWT(tokenString string) (string, store.Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	subject, _ := claims["sub"].(string)
	roleStr, _ := claims["role"].(string)
	role := store.Role(roleStr)
	if !ValidRole(role) {
		return "", "", fmt.Errorf("invalid role claim %q", roleStr)
	}
	return subject, role, nil
}
