package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// AdminBcryptCost is the cost factor for hashing the admin token. Higher than
// the library default because the token is verified rarely (admin operations
// only) and brute-force resistance matters more than latency here.
const AdminBcryptCost = 12

// HashAdminToken produces the bcrypt hash to store in configuration.
func HashAdminToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("admin token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), AdminBcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyAdminToken checks a presented token against the configured hash.
func VerifyAdminToken(storedHash, providedToken string) bool {
	if storedHash == "" || providedToken == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(providedToken)) == nil
}
