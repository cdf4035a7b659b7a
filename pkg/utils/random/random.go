package random

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Intn returns a uniform integer in [0, n) from crypto/rand.
func Intn(n int) (int, error) {
	return intnFrom(rand.Reader, n)
}

func intnFrom(r io.Reader, n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	v, err := rand.Int(r, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("random: %w", err)
	}
	return int(v.Int64()), nil
}

// Shuffle permutes s in place (Fisher-Yates). On error s is left partly
// shuffled and must not be used.
func Shuffle[T any](s []T) error {
	return ShuffleFrom(rand.Reader, s)
}

// ShuffleFrom is Shuffle drawing from r.
func ShuffleFrom[T any](r io.Reader, s []T) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := intnFrom(r, i+1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}
