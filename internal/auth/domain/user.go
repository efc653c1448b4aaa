// Package domain holds the authentication/session model: users,
// credential hashing, bearer tokens, and the push-button pairing state
// machine from §4.G.
package domain

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"
	"time"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// usernamePattern enforces the email-shaped username rule from §4.G.
var usernamePattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// passwordSymbols is the fixed symbol set §4.G's password rule checks
// against.
const passwordSymbols = `!"#$%&'()*+,-./:;<=>?@[\]^_` + "`{|}~"

// User is a credential holder: a case-insensitive-lookup username, a
// per-user random salt, and a salted password hash. Storage retains the
// original username case; lookups normalize to lower case.
type User struct {
	Username     string
	Salt         []byte
	PasswordHash []byte
}

// ValidateUsername checks the email-shaped username rule.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return valuetype.NewError(valuetype.InvalidUserID, "username must look like local@domain.tld")
	}
	return nil
}

// ValidatePassword checks length >= 8, >= 1 letter, >= 1 digit, and >= 1
// symbol from the fixed set. This is the textual rule from §4.G — the
// source's own password regex has an escaped-digit-class typo that is
// not reproduced here.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return valuetype.NewError(valuetype.BadPassword, "password must be at least 8 characters")
	}
	var hasLetter, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			for _, s := range passwordSymbols {
				if r == s {
					hasSymbol = true
					break
				}
			}
		}
	}
	if !hasLetter || !hasDigit || !hasSymbol {
		return valuetype.NewError(valuetype.BadPassword, "password needs at least one letter, one digit, and one symbol")
	}
	return nil
}

// NewUser validates username/password and returns a User with a freshly
// generated salt and hash, ready to persist.
func NewUser(username, password string) (User, error) {
	if err := ValidateUsername(username); err != nil {
		return User{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return User{}, err
	}
	salt := make([]byte, 16) // 128 bits
	if _, err := rand.Read(salt); err != nil {
		return User{}, fmt.Errorf("generate salt: %w", err)
	}
	return User{Username: username, Salt: salt, PasswordHash: hashPassword(password, salt)}, nil
}

// hashPassword implements the §4.G policy knob: SHA-512(password || salt).
func hashPassword(password string, salt []byte) []byte {
	h := sha512.New()
	h.Write([]byte(password))
	h.Write(salt)
	return h.Sum(nil)
}

// CheckPassword reports whether password is correct, in constant time.
func (u User) CheckPassword(password string) bool {
	got := hashPassword(password, u.Salt)
	return subtle.ConstantTimeCompare(got, u.PasswordHash) == 1
}

// Token is an issued bearer credential. Only TokenHash is persisted; the
// plaintext token is returned once, at issuance, and never stored.
type Token struct {
	ID         valuetype.TokenID
	Username   string
	TokenHash  []byte
	CreatedAt  time.Time
	DeviceName string
}

// NewToken mints a fresh opaque, printable, base64url-safe token, paired
// with the Token record (carrying only its hash) to persist.
func NewToken(username, deviceName string) (plaintext string, record Token, err error) {
	raw := make([]byte, 32) // 256 bits
	if _, err = rand.Read(raw); err != nil {
		return "", Token{}, fmt.Errorf("generate token: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha512.Sum512([]byte(plaintext))
	record = Token{
		ID:         valuetype.NewTokenID(),
		Username:   username,
		TokenHash:  sum[:],
		CreatedAt:  time.Now(),
		DeviceName: deviceName,
	}
	return plaintext, record, nil
}

// HashToken hashes a plaintext token for lookup/comparison.
func HashToken(plaintext string) []byte {
	sum := sha512.Sum512([]byte(plaintext))
	return sum[:]
}

// Matches reports whether plaintext hashes to this token's stored hash,
// compared in constant time.
func (t Token) Matches(plaintext string) bool {
	return subtle.ConstantTimeCompare(HashToken(plaintext), t.TokenHash) == 1
}
