package handler

import (
	"strconv"
	"strings"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// byteRange is an inclusive window of a blob.
type byteRange struct {
	start, end int64
}

func (r byteRange) length() int64 {
	return r.end - r.start + 1
}

// parseRange parses a single-range Range header against a blob of size
// bytes. It supports "bytes=N-M", "bytes=N-" and "bytes=-N". The end is
// clamped to the last byte; multiple ranges and windows outside the blob
// are rejected with domain.ErrRangeNotSatisfiable.
func parseRange(header string, size int64) (byteRange, error) {
	unit, spec, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return byteRange{}, domain.ErrRangeNotSatisfiable
	}
	if strings.Contains(spec, ",") {
		return byteRange{}, domain.ErrRangeNotSatisfiable
	}

	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return byteRange{}, domain.ErrRangeNotSatisfiable
	}

	r := byteRange{end: size - 1}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, domain.ErrRangeNotSatisfiable
		}
		r.start = max(size-n, 0)
	} else {
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return byteRange{}, domain.ErrRangeNotSatisfiable
		}
		r.start = start

		if end, err := strconv.ParseInt(last, 10, 64); err == nil && end < r.end {
			r.end = end
		}
	}

	if r.start > r.end || r.start > size-1 {
		return byteRange{}, domain.ErrRangeNotSatisfiable
	}
	return r, nil
}
