package usecases

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"project_waflow/internal/entities"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// TokenTTL is the lifetime of an issued dashboard token
const TokenTTL = 24 * time.Hour

// AuthUsecase authenticates the single dashboard operator
type AuthUsecase struct {
	mu        sync.RWMutex
	operator  *entities.Operator
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthUsecase(secret string) *AuthUsecase {
	return &AuthUsecase{
		jwtSecret: []byte(secret),
		now:       time.Now,
	}
}

// EnsureAdmin registers the operator account (called on startup)
func (uc *AuthUsecase) EnsureAdmin(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: admin username and password", ErrMissingField)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	uc.mu.Lock()
	uc.operator = &entities.Operator{
		Username:     username,
		PasswordHash: string(hashed),
		Role:         "admin",
	}
	uc.mu.Unlock()
	return nil
}

func (uc *AuthUsecase) Login(username, password string) (string, error) {
	uc.mu.RLock()
	op := uc.operator
	uc.mu.RUnlock()

	if op == nil || op.Username != username {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  op.Username,
		"role": op.Role,
		"exp":  uc.now().Add(TokenTTL).Unix(),
	})

	tokenString, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return tokenString, nil
}
