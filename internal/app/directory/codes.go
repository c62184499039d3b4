package directory

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/dalemusser/bandhub/internal/domain/models"
)

// CodeSource produces candidate join codes.
type CodeSource interface {
	NewCode() (string, error)
}

// RandomCodes draws each symbol uniformly from models.JoinCodeAlphabet
// using crypto/rand.
type RandomCodes struct{}

func (RandomCodes) NewCode() (string, error) {
	alphabet := models.JoinCodeAlphabet
	n := big.NewInt(int64(len(alphabet)))
	b := make([]byte, models.JoinCodeLength)
	for i := range b {
		k, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[k.Int64()]
	}
	return string(b), nil
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
