package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/example/chess-session-core/internal/v1/logging"
)

// CustomClaims represents the JWT claims carried by a connecting user.
// It embeds jwt.RegisteredClaims (Subject holds userId) and adds the two
// additional fields the gateway requires per connection: Username and Email.
type CustomClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// TokenExpiry is the lifetime applied to tokens minted by this service's own
// test/dev helpers; production tokens are issued by the identity service and
// simply validated here.
const TokenExpiry = 7 * 24 * time.Hour

// Validator validates HMAC-SHA256 signed bearer tokens against a shared secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator from the shared HMAC secret. The secret is
// the same JWT_SECRET the identity service (out of scope for this repo) signs
// tokens with.
func NewValidator(secret string) (*Validator, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	return &Validator{secret: []byte(secret)}, nil
}

// ValidateToken parses and validates tokenString, returning its claims.
// Required claims per the external contract: userId (subject), username, email,
// all three as non-empty strings.
func (v *Validator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}

	if claims.Subject == "" {
		return nil, errors.New("token missing userId claim")
	}
	if claims.Username == "" {
		return nil, errors.New("token missing username claim")
	}
	if claims.Email == "" {
		return nil, errors.New("token missing email claim")
	}

	return claims, nil
}

// IssueToken mints an HS256 token with the standard 7-day expiry. Exposed for
// local development and tests; production tokens come from the identity
// service using the same shared secret and claim shape.
func IssueToken(secret, userID, username, email string) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Username: username,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GetAllowedOriginsFromEnv reads a comma-separated origin allow-list from the
// named environment variable, falling back to defaultEnvs for local development.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}

// MockValidator is a development-only token validator that accepts any
// token. It trusts the unverified payload of a JWT-shaped token and fills
// every claim it cannot read (all of them, for a token that is not
// JWT-shaped) with fixed dev-user defaults.
type MockValidator struct{}

func (m *MockValidator) ValidateToken(tokenString string) (*CustomClaims, error) {
	var subject, username, email string

	parts := strings.Split(tokenString, ".")
	if len(parts) == 3 {
		payload, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err == nil {
			var claims map[string]interface{}
			if json.Unmarshal(payload, &claims) == nil {
				if sub, ok := claims["sub"].(string); ok {
					subject = sub
				}
				if n, ok := claims["username"].(string); ok {
					username = n
				}
				if e, ok := claims["email"].(string); ok {
					email = e
				}
				logging.Info(context.Background(), "MockValidator parsed JWT", zap.String("subject", subject), zap.String("username", username), zap.String("email", email))
			}
		}
	}

	if subject == "" {
		subject = "dev-user-123"
	}
	if username == "" {
		username = "Dev User"
	}
	if email == "" {
		email = "dev@example.com"
	}

	claims := &CustomClaims{
		Username: username,
		Email:    email,
	}
	claims.Subject = subject
	return claims, nil
}
