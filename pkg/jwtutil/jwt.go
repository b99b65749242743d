package jwtutil

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"tenant-service/pkg/config"
)

var (
	// ErrTenantMismatch is returned when an API key's tenant does not match
	// the tenant it is presented for.
	ErrTenantMismatch = errors.New("api key is scoped to a different tenant")
	// ErrScopeMissing is returned when an API key lacks a required scope.
	ErrScopeMissing = errors.New("api key does not include the required scope")
)

// UserClaims represents the identity claims carried by an authenticated
// request. TenantID holds the directory's tenant UUID when the caller has a
// tenant context; the resolver uses it as the lowest-precedence signal.
type UserClaims struct {
	Email      string `json:"email"`
	UserID     uint   `json:"user_id"`
	TenantID   string `json:"tenantId,omitempty"`
	TenantName string `json:"tenant_name,omitempty"`
	Role       string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// APIKeyClaims represents a scoped, tenant-bound API key issued by the
// lifecycle surface.
type APIKeyClaims struct {
	TenantID string   `json:"tenantId"`
	Scopes   []string `json:"scopes"`
	KeyID    string   `json:"kid"`
	jwt.RegisteredClaims
}

// JWTUtil signs and validates tokens with the configured key.
type JWTUtil struct {
	config *config.JWTConfig
}

// New creates a JWT utility with the given configuration.
func New(cfg *config.JWTConfig) *JWTUtil {
	return &JWTUtil{config: cfg}
}

// GenerateToken creates a token carrying user identity and optional tenant
// context.
func (j *JWTUtil) GenerateToken(email string, userID uint, tenantID, tenantName, role string) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := UserClaims{
		Email:      email,
		UserID:     userID,
		TenantID:   tenantID,
		TenantName: tenantName,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(j.config.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateToken validates and parses an identity token.
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// GenerateAPIKey creates a long-lived key scoped to one tenant and a set of
// named scopes.
func (j *JWTUtil) GenerateAPIKey(tenantID, keyID string, scopes []string) (string, error) {
	if j.config == nil {
		return "", errors.New("JWT configuration not provided")
	}

	claims := APIKeyClaims{
		TenantID: tenantID,
		Scopes:   scopes,
		KeyID:    keyID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.config.SigningKey))
}

// ValidateAPIKey validates an API key against the tenant it is presented for
// and a required scope.
func (j *JWTUtil) ValidateAPIKey(tokenString, tenantID, requiredScope string) (*APIKeyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIKeyClaims{}, j.keyFunc)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*APIKeyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}

	if claims.TenantID != tenantID {
		return nil, ErrTenantMismatch
	}

	if requiredScope != "" {
		found := false
		for _, s := range claims.Scopes {
			if s == requiredScope {
				found = true
				break
			}
		}
		if !found {
			return nil, ErrScopeMissing
		}
	}

	return claims, nil
}

func (j *JWTUtil) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, jwt.ErrSignatureInvalid
	}
	return []byte(j.config.SigningKey), nil
}
