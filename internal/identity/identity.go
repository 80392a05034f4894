// Package identity holds the account model shared with the external identity provider
// and the temporary credential generator.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// Account is the profile sent to the identity provider when an account is created.
type Account struct {
	Email     string
	FirstName string
	LastName  string
}

// ErrAccountExists is returned when the realm already holds an account for the email.
var ErrAccountExists = errors.New("identity provider account already exists")

const (
	lowerChars   = "abcdefghijkmnopqrstuvwxyz"
	upperChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars   = "23456789"
	symbolChars  = "!@#$%^&*-_=+?"
	passwordSize = 20
)

// GenerateTemporaryPassword returns a random credential holding at least one character
// of every class. The identity provider forces a reset on first login.
func GenerateTemporaryPassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars

	out := make([]byte, passwordSize)
	for i := range out {
		set := all
		if i < len(classes) {
			set = classes[i]
		}
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		out[i] = c
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle credential: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generate credential: %w", err)
	}
	return set[n.Int64()], nil
}
