package session

import (
	"crypto/rand"
	"math/big"
)

// flipCork returns the seat that wins the cork using crypto/rand.
func flipCork() int {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		// Fallback: read a byte directly
		var b [1]byte
		if _, readErr := rand.Read(b[:]); readErr != nil {
			return 0
		}
		return int(b[0] & 1)
	}
	return int(n.Int64())
}
