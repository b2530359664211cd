package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/models"
	"github.com/nguyentranbao-ct/team-messaging/internal/repo/mongodb"
)

// AuthUseCase verifies the session tokens presented by clients. Tokens are
// HMAC signed JWTs whose subject is the user id.
type AuthUseCase struct {
	profileRepo mongodb.ProfileRepository
	jwtSecret   []byte
	issuer      string
	tokenTTL    time.Duration
}

func NewAuthUseCase(conf *config.Config, profileRepo mongodb.ProfileRepository) *AuthUseCase {
	return &AuthUseCase{
		profileRepo: profileRepo,
		jwtSecret:   []byte(conf.Auth.JWTSecret),
		issuer:      conf.Auth.Issuer,
		tokenTTL:    conf.Auth.TokenTTL,
	}
}

// ValidateToken returns the user id carried by tokenString.
func (uc *AuthUseCase) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	claims, err := uc.Verify(ctx, tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Verify checks the signature and expiry of tokenString and that its subject
// is not a deactivated user.
func (uc *AuthUseCase) Verify(ctx context.Context, tokenString string) (*jwt.RegisteredClaims, error) {
	claims, err := uc.parseJWT(tokenString)
	if err != nil {
		return nil, models.Fail("validate_token", models.ReasonUnauthenticated, "invalid token: %v", err)
	}
	if claims.Subject == "" {
		return nil, models.Fail("validate_token", models.ReasonUnauthenticated, "token has no subject")
	}

	profile, err := uc.profileRepo.GetByID(ctx, claims.Subject)
	switch {
	case errors.Is(err, models.ErrNotFound):
		// first sign in, the profile is created by the client afterwards
	case err != nil:
		return nil, fmt.Errorf("get profile: %w", err)
	case !profile.IsActive:
		return nil, models.Fail("validate_token", models.ReasonUnauthenticated, "user account is deactivated")
	}
	return claims, nil
}

// IssueToken signs a token for userID. Used by local tooling; production
// tokens come from the identity provider sharing the secret.
func (uc *AuthUseCase) IssueToken(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(uc.tokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    uc.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func (uc *AuthUseCase) parseJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if uc.issuer != "" {
		opts = append(opts, jwt.WithIssuer(uc.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return uc.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
