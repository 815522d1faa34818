package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"barter/internal/apperr"
)

const MinPasswordLength = 8

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength requires at least eight characters with an upper
// and lower case letter, a digit and a symbol.
func ValidatePasswordStrength(password string) error {
	var upper, lower, digit, symbol bool
	count := 0
	for _, r := range password {
		count++
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			symbol = true
		}
	}

	if count < MinPasswordLength || !upper || !lower || !digit || !symbol {
		return apperr.New(apperr.InvalidArgument,
			"Password must be at least 8 characters and contain an uppercase letter, a lowercase letter, a digit and a symbol")
	}
	return nil
}
