package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/golang-jwt/jwt/v5"
)

type TokenGeneratorAPI interface {
	GenerateAccessToken(p Principal) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Service turns bearer tokens into principals.
type Service struct {
	tokenGenerator TokenGeneratorAPI
}

func NewService(tokenGen TokenGeneratorAPI) *Service {
	return &Service{tokenGenerator: tokenGen}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(secret, issuer string, accessTTL time.Duration) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		Secret:         []byte(secret),
		Issuer:         issuer,
		AccessTokenTTL: accessTTL,
		now:            time.Now,
	}
}

func (s *Service) Authenticate(tokenString string) (*Principal, error) {
	claims, err := s.tokenGenerator.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	uid, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || uid <= 0 {
		return nil, appErrors.ErrInvalidToken
	}

	return &Principal{
		UserID:       uid,
		Email:        claims.Email,
		TenantSchema: claims.TenantSchema,
		Permissions:  claims.Permissions,
	}, nil
}

// IssueToken mints an access token, used by operators to bootstrap admin access.
func (s *Service) IssueToken(p Principal) (string, error) {
	return s.tokenGenerator.GenerateAccessToken(p)
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(p Principal) (string, error) {
	now := j.now()
	userID := strconv.FormatInt(p.UserID, 10)

	claims := &Claims{
		UserID:       userID,
		Email:        p.Email,
		TenantSchema: p.TenantSchema,
		Permissions:  p.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.Secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.ErrTokenExpired
		}
		return nil, appErrors.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, appErrors.ErrInvalidToken
}
