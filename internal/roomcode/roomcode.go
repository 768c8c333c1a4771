// Package roomcode produces short human-shareable codes used to discover a
// session, e.g. SWIFT-7284. The generator alone makes no uniqueness
// guarantee; callers must check the code against currently active sessions
// and regenerate on collision.
package roomcode

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/nikworkspace/anyshare/internal/domain"
)

var words = []string{
	"SWIFT", "QUICK", "FLASH", "RAPID", "BLAZE",
	"SPARK", "BOLT", "DASH", "ZOOM", "PULSE",
	"WAVE", "STORM", "FIRE", "WIND", "FROST",
}

const suffixMax = 10000

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate draws a WORD-NNNN code from a CSPRNG.
func (g *Generator) Generate() (domain.RoomCode, error) {
	wi, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("draw word: %w", err)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(suffixMax))
	if err != nil {
		return "", fmt.Errorf("draw suffix: %w", err)
	}
	return domain.RoomCode(fmt.Sprintf("%s-%04d", words[wi.Int64()], n.Int64())), nil
}
