package utils

import "golang.org/x/crypto/bcrypt"

func HashPassword(s string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
}

func ComparePassword(hashed string, normal string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal))
}

// HashSecrets bcrypt-hashes every value, keeping order.
func HashSecrets(values []string) ([]string, error) {
	hashes := make([]string, 0, len(values))
	for _, v := range values {
		h, err := HashPassword(v)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, string(h))
	}
	return hashes, nil
}

// MatchHashedSecret returns the index of the hash matching plain, or -1.
func MatchHashedSecret(hashes []string, plain string) int {
	for i, h := range hashes {
		if ComparePassword(h, plain) == nil {
			return i
		}
	}
	return -1
}
