package crypto

import (
	"crypto/sha256"
	"strings"

	"github.com/mr-tron/base58"
)

// Fingerprint returns a short base58 digest of a pair of public keys for
// out-of-band comparison. The digest is grouped in blocks of five.
func Fingerprint(edPub, xPub []byte) string {
	h := sha256.New()
	h.Write([]byte("fpr:v1|"))
	h.Write(edPub)
	h.Write(xPub)
	sum := h.Sum(nil)

	enc := base58.Encode(sum[:20])
	var b strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := min(i+5, len(enc))
		b.WriteString(enc[i:end])
	}
	return b.String()
}
