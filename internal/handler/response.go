package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/alexander-assets/internal/domain"
)

// rangeNotSatisfiableBody is the body of 416 responses.
const rangeNotSatisfiableBody = "Requested Range Not Satisfiable"

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to an HTTP status and writes it as JSON.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	status := statusFor(err)
	message := http.StatusText(status)

	switch {
	case status == http.StatusRequestedRangeNotSatisfiable:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(rangeNotSatisfiableBody))
		return
	case status >= http.StatusInternalServerError:
		logger.Error().Err(err).Msg("request failed")
	default:
		message = err.Error()
	}

	writeJSON(w, status, ErrorResponse{Error: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAssetNotFound), errors.Is(err, domain.ErrVariationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, domain.ErrEmptyUpload), errors.Is(err, domain.ErrDimensionTooLarge), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

// setCacheHeaders marks a response cacheable for one year and allows any
// origin.
func setCacheHeaders(h http.Header, asset *domain.Asset, now time.Time) {
	expires := now.AddDate(1, 0, 0)
	maxAge := int64(expires.Sub(now) / time.Second)

	h.Set("Expires", expires.UTC().Format(http.TimeFormat))
	if !asset.CreatedAt.IsZero() {
		h.Set("Last-Modified", asset.CreatedAt.UTC().Format(http.TimeFormat))
	}
	h.Set("Cache-Control", "max-age="+strconv.FormatInt(maxAge, 10)+", public")
	h.Set("Access-Control-Allow-Origin", "*")
}
