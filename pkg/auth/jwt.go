package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"erpinsight/pkg/errors"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token expired")
	ErrMissingClaims = errors.New("missing required claims")
)

// RefreshGrace is how long after expiry a token may still be exchanged for a
// new one
const RefreshGrace = 24 * time.Hour

// Claims identifies the API caller. RealmID binds the token to one
// QuickBooks company when set.
type Claims struct {
	UserID      string `json:"user_id"`
	RealmID     string `json:"realm_id,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	jwt.RegisteredClaims
}

// AllowsRealm reports whether the token may act on realmID. Unscoped
// tokens allow every realm.
func (c *Claims) AllowsRealm(realmID string) bool {
	return c.RealmID == "" || c.RealmID == realmID
}

// JWTService issues and checks HS256 API tokens
type JWTService struct {
	secretKey []byte
	issuer    string
	ttl       time.Duration
	now       func() time.Time
}

func NewJWTService(secretKey string, issuer string, ttl time.Duration) *JWTService {
	return &JWTService{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		ttl:       ttl,
		now:       time.Now,
	}
}

// GenerateToken issues a token for userID, scoped to realmID when it is set
func (s *JWTService) GenerateToken(userID, realmID, companyName string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrMissingClaims
	}

	now := s.now()
	claims := Claims{
		UserID:      userID,
		RealmID:     strings.TrimSpace(realmID),
		CompanyName: companyName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// ValidateToken checks signature, issuer and expiry
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, 0)
}

// RefreshToken reissues a token that is valid or expired less than
// RefreshGrace ago. Realm scope and company carry over.
func (s *JWTService) RefreshToken(tokenString string) (string, error) {
	claims, err := s.parse(tokenString, RefreshGrace)
	if err != nil {
		return "", err
	}
	return s.GenerateToken(claims.UserID, claims.RealmID, claims.CompanyName)
}

func (s *JWTService) parse(tokenString string, leeway time.Duration) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	case claims.UserID == "":
		return nil, ErrMissingClaims
	}
	return claims, nil
}
