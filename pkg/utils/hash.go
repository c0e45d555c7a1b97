// Package utils holds small helpers shared by the HTTP handlers.
package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost for room passwords. They are short, so it sits above the default.
const PasswordCost = 12

// HashPassword hashes a room password with bcrypt. An empty password means
// "no password" and yields an empty hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(bytes), err
}

// CheckPassword reports whether plain matches hashed. An empty hash accepts anything.
func CheckPassword(plain, hashed string) bool {
	if hashed == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
