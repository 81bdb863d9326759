package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medinet/federation-api/internal/model"
)

// Claims carries the principal fields the coordinator trusts. Token
// issuance happens upstream; this package only validates and extracts.
type Claims struct {
	PrincipalType string `json:"principal_type"`
	HospitalID    string `json:"hospital_id,omitempty"`
	jwt.RegisteredClaims
}

type JWTService interface {
	ValidateToken(token string) (*model.Principal, error)
	GenerateToken(p *model.Principal, ttl time.Duration) (string, error)
}

type jwtService struct {
	secret []byte
}

func NewJWTService(secret string) JWTService {
	return &jwtService{secret: []byte(secret)}
}

func (s *jwtService) ValidateToken(tokenString string) (*model.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	pType := model.PrincipalType(claims.PrincipalType)
	switch pType {
	case model.PrincipalPatient, model.PrincipalDoctor, model.PrincipalHospitalAdmin, model.PrincipalCentralAdmin:
	default:
		return nil, fmt.Errorf("unknown principal type %q", claims.PrincipalType)
	}

	return &model.Principal{
		ID:         claims.Subject,
		Type:       pType,
		HospitalID: claims.HospitalID,
	}, nil
}

// GenerateToken exists for tests and tooling; production tokens come from
// the identity provider.
func (s *jwtService) GenerateToken(p *model.Principal, ttl time.Duration) (string, error) {
	claims := &Claims{
		PrincipalType: string(p.Type),
		HospitalID:    p.HospitalID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
