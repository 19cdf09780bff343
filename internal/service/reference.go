package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ReferenceGenerator builds human-facing booking references of the form
// PREFIX-YYYYMMDD-RANDOM. References are not checked for collisions; the
// ledger's unique constraint rejects the rare duplicate.
type ReferenceGenerator struct {
	Prefix       string
	RandomLength int
	Location     *time.Location
	Now          func() time.Time
}

// NewReferenceGenerator creates a generator with defaults for empty fields
func NewReferenceGenerator(prefix string, randomLength int, loc *time.Location) *ReferenceGenerator {
	if prefix == "" {
		prefix = "BOOK"
	}
	if randomLength <= 0 {
		randomLength = 6
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ReferenceGenerator{
		Prefix:       prefix,
		RandomLength: randomLength,
		Location:     loc,
		Now:          time.Now,
	}
}

// Generate returns a new booking reference
func (g *ReferenceGenerator) Generate() (string, error) {
	suffix, err := randomString(g.RandomLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate booking reference: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s", g.Prefix, g.Now().In(g.Location).Format("20060102"), suffix), nil
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = referenceAlphabet[idx.Int64()]
	}
	return string(b), nil
}
