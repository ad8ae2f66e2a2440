package cryptox

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{};:,.?/"
)

var ErrGeneratorOptions = errors.New("password length must cover every selected character class")

// PasswordOptions selects the character classes used by GeneratePassword.
type PasswordOptions struct {
	Length  int
	Lower   bool
	Upper   bool
	Digits  bool
	Symbols bool
}

// DefaultPasswordOptions is a 20 character password from all classes.
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{Length: 20, Lower: true, Upper: true, Digits: true, Symbols: true}
}

// GeneratePassword returns a random password drawn uniformly from the selected
// classes, with at least one character of every selected class.
func GeneratePassword(opts PasswordOptions) (string, error) {
	var classes []string
	if opts.Lower {
		classes = append(classes, lowerChars)
	}
	if opts.Upper {
		classes = append(classes, upperChars)
	}
	if opts.Digits {
		classes = append(classes, digitChars)
	}
	if opts.Symbols {
		classes = append(classes, symbolChars)
	}
	if len(classes) == 0 || opts.Length < len(classes) {
		return "", ErrGeneratorOptions
	}

	var all string
	for _, c := range classes {
		all += c
	}

	out := make([]byte, opts.Length)
	for i, c := range classes {
		ch, err := randomChar(c)
		if err != nil {
			return "", err
		}
		out[i] = ch
	}
	for i := len(classes); i < opts.Length; i++ {
		ch, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out[i] = ch
	}

	// Fisher-Yates so the guaranteed characters are not always first.
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
