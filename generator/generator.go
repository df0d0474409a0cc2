// Package generator produces collision-checked random short addresses.
package generator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/lnkr-app/lnkr/model"
	"github.com/lnkr-app/lnkr/repo"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890"

// maxCollisions is the cutoff after which repeated collisions are treated
// as a configuration error (alphabet/length too small for the load).
const maxCollisions = 20

// LinkFinder is the only repository capability the generator needs.
type LinkFinder interface {
	FindLink(ctx context.Context, filter repo.LinkFilter) (*model.Link, error)
}

type Generator struct {
	Length int
	Repo   LinkFinder
}

func New(length int, r LinkFinder) *Generator {
	return &Generator{Length: length, Repo: r}
}

func randomAddress(length int) (string, error) {
	buf := make([]byte, length)
	max := big.NewInt(int64(len(alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// Generate returns a fresh address that does not exist in the default
// domain scope. It retries on collision; no side effects beyond the
// existence check.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCollisions; attempt++ {
		address, err := randomAddress(g.Length)
		if err != nil {
			return "", err
		}

		existing, err := g.Repo.FindLink(ctx, repo.LinkFilter{Address: address})
		if err != nil {
			return "", err
		}
		if existing == nil {
			return address, nil
		}
	}

	return "", fmt.Errorf("generator: %d consecutive address collisions, link length %d is too small", maxCollisions, g.Length)
}
