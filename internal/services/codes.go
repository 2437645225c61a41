package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	verificationCodeLength = 6
	claimCodeLength        = 6
	claimAlphabet          = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxCodeAttempts bounds regeneration after a uniqueness collision.
	maxCodeAttempts = 5
)

// NewVerificationCode returns a uniformly random 6-digit withdrawal code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", verificationCodeLength, n.Int64()), nil
}

// NewClaimCode returns a random 6-character code over A-Z0-9.
func NewClaimCode() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(claimAlphabet)))
	for i := 0; i < claimCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate claim code: %w", err)
		}
		b.WriteByte(claimAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
