package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
	config "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Config"
)

var ErrInvalidToken = errors.New("invalid alerts token")

// AlertsClaims authorise one user to open an alerts websocket
type AlertsClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// AlertsToken is handed to the user backend, which passes it to the browser
type AlertsToken struct {
	Token     string `json:"token"`
	TokenID   string `json:"token_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// Service provides JWT operations
type Service struct {
	config config.AlertsConfig
	now    func() time.Time
}

// NewService creates a new JWT service
func NewService(cfg config.AlertsConfig) *Service {
	return &Service{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateAlertsToken signs a short-lived token for userID
func (s *Service) GenerateAlertsToken(userID string) (*AlertsToken, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	tokenID := uuid.New().String()
	now := s.now()
	expiresAt := now.Add(s.config.TokenTTL)

	claims := AlertsClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return nil, err
	}

	return &AlertsToken{
		Token:     signed,
		TokenID:   tokenID,
		ExpiresAt: expiresAt.Unix(),
	}, nil
}

// ValidateAlertsToken validates a token and returns its claims
func (s *Service) ValidateAlertsToken(tokenString string) (*AlertsClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AlertsClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.TokenSecret), nil
	},
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*AlertsClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
