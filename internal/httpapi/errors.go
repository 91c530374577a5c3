package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voicenotes-go/internal/pipeline"
	"voicenotes-go/internal/types"
)

// respondError maps domain errors onto HTTP statuses and the shared error
// envelope. The trace id goes into every error body so clients can report
// failures against server logs.
func respondError(c *gin.Context, err error) {
	status, code := classify(err)
	c.JSON(status, gin.H{
		"ok":      false,
		"code":    code,
		"message": err.Error(),
		"trace":   pipeline.TraceFrom(c.Request.Context()),
	})
}

func classify(err error) (int, string) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Code
	}
	var nf *types.NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound, "not_found"
	}
	var unsupported *types.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return http.StatusUnsupportedMediaType, "unsupported_format"
	}
	var upstream *types.UpstreamError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway, "upstream_failed"
	}

	switch {
	case errors.Is(err, types.ErrMissingParams):
		return http.StatusBadRequest, "missing_params"
	case errors.Is(err, types.ErrInvalidPath):
		return http.StatusBadRequest, "invalid_path"
	case errors.Is(err, types.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email"
	case errors.Is(err, types.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge, "input_too_large"
	case errors.Is(err, types.ErrMissingIdempotency):
		return http.StatusBadRequest, "missing_idempotency_key"
	case errors.Is(err, types.ErrRecordingNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, types.ErrEmptyTranscript):
		return http.StatusUnprocessableEntity, "empty_transcript"
	}
	return http.StatusInternalServerError, "internal"
}
