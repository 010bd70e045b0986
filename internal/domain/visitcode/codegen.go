package visitcode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeCharset deliberately omits the lookalikes 0/O, 1/I/L so a code read
// aloud at the front desk survives the trip.
const codeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a visit code.
const CodeLength = 6

// newCode draws a random code from the unambiguous charset.
func newCode() (string, error) {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeCharset)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("draw random code character: %w", err)
		}
		buf[i] = codeCharset[n.Int64()]
	}
	return string(buf), nil
}
