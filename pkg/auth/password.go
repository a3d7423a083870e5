package auth

import "golang.org/x/crypto/bcrypt"

// Credentials live in the Password column of the account store, always as a
// bcrypt hash, never plaintext.
const passwordHashCost = bcrypt.DefaultCost

// HashPassword derives the storable hash of a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}
