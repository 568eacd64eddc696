package crypto

import (
	"bytes"
	"errors"
	"io"
)

// CompareChunkSize is the window used for byte-exact comparison.
const CompareChunkSize = 8192

// StreamsEqual reports whether two readers yield identical bytes.
// Both readers are consumed in CompareChunkSize windows and comparison
// stops at the first differing window.
func StreamsEqual(a, b io.Reader) (bool, error) {
	bufA := make([]byte, CompareChunkSize)
	bufB := make([]byte, CompareChunkSize)

	for {
		na, errA := io.ReadFull(a, bufA)
		if errA != nil && !isShortRead(errA) {
			return false, errA
		}
		nb, errB := io.ReadFull(b, bufB)
		if errB != nil && !isShortRead(errB) {
			return false, errB
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		if errA != nil || errB != nil {
			return errA != nil && errB != nil, nil
		}
	}
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
