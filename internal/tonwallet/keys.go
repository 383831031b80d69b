package tonwallet

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/tonkeeper/tongo/ton"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	mnemonicWords      = 24
	mnemonicSalt       = "TON default seed"
	mnemonicIterations = 100_000
	userKeyInfo        = "custody deposit wallet v3"
)

// ErrInvalidMnemonic is returned for phrases that are not 24 words long.
var ErrInvalidMnemonic = errors.New("mnemonic must have 24 words")

// KeyFromMnemonic derives the wallet key from a TON mnemonic phrase.
func KeyFromMnemonic(words []string, password string) (ed25519.PrivateKey, error) {
	if len(words) != mnemonicWords {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMnemonic, len(words))
	}
	normalized := make([]string, len(words))
	for i, w := range words {
		normalized[i] = strings.ToLower(strings.TrimSpace(w))
	}
	mac := hmac.New(sha512.New, []byte(strings.Join(normalized, " ")))
	mac.Write([]byte(password))
	entropy := mac.Sum(nil)
	seed := pbkdf2.Key(entropy, []byte(mnemonicSalt), mnemonicIterations, 64, sha512.New)
	return ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize]), nil
}

// UserKey derives the deposit wallet key of user from the master secret.
// The same master and user always give the same key.
func UserKey(master []byte, user uuid.UUID) (ed25519.PrivateKey, error) {
	if len(master) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, user[:], []byte(userKeyInfo)), seed); err != nil {
		return nil, fmt.Errorf("derive user key: %w", err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// UserAddress returns the default wallet address owned by user.
func UserAddress(master []byte, user uuid.UUID) (ton.AccountID, error) {
	key, err := UserKey(master, user)
	if err != nil {
		return ton.AccountID{}, err
	}
	return DeriveAddress(key.Public().(ed25519.PublicKey))
}
