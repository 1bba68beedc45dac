package crypto

import "io"

// SetRandReaderForTesting replaces the random source used for masters, salts,
// nonces, sealed boxes and message ids. It returns a function restoring the
// previous source.
func SetRandReaderForTesting(r io.Reader) func() {
	original := randReader
	randReader = r
	return func() { randReader = original }
}
