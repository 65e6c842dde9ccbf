// Package auth protects the settings endpoints. There is a single admin
// account whose bcrypt hash lives in the configuration; a successful login
// returns a signed JWT that authorizes later settings changes.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles carried in token claims
const (
	RoleAdmin  = "admin"  // May change settings
	RoleViewer = "viewer" // Read-only access
)

const issuer = "overhead"

var (
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrNoSecret is returned when tokens are requested without a signing secret
	ErrNoSecret = errors.New("jwt secret not configured")
)

// Claims represents the JWT claims for an admin session
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // How long tokens are valid
	BCryptCost    int           // BCrypt hashing cost (default: bcrypt.DefaultCost)
}

// Service provides authentication operations
type Service struct {
	config Config

	mu     sync.RWMutex
	secret []byte
}

// NewService creates a new authentication service
func NewService(cfg Config) *Service {
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}
	// Set default token duration if not specified (12 hours)
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = 12 * time.Hour
	}
	return &Service{config: cfg, secret: []byte(cfg.JWTSecret)}
}

// SetSecret replaces the signing secret. Tokens signed with the previous
// secret stop validating.
func (s *Service) SetSecret(secret string) {
	s.mu.Lock()
	s.secret = []byte(secret)
	s.mu.Unlock()
}

func (s *Service) signingKey() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret
}

// HashPassword hashes a plaintext password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Login checks password against the stored hash and issues an admin token.
func (s *Service) Login(hashedPassword, password string) (string, error) {
	if hashedPassword == "" {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken("admin", RoleAdmin)
}

// GenerateToken generates a JWT token for subject
func (s *Service) GenerateToken(subject, role string) (string, error) {
	key := s.signingKey()
	if len(key) == 0 {
		return "", ErrNoSecret
	}

	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	key := s.signingKey()
	if len(key) == 0 {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// CanChangeSettings checks if a role may modify the configuration
func CanChangeSettings(role string) bool {
	return role == RoleAdmin
}

// RandomSecret returns a fresh signing secret for deployments that did not
// configure one. Tokens signed with it do not survive a restart.
func RandomSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
