package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Kind tags an Envelope as a success or an error.
type Kind string

const (
	// KindSuccess carries a payload in Data.
	KindSuccess Kind = "success"
	// KindError carries a human-readable message in Data.
	KindError Kind = "error"
)

// Envelope wraps every API response.
type Envelope[T any] struct {
	Type Kind `json:"type"`
	Data T    `json:"data"`
}

// Success wraps a payload.
func Success[T any](data T) Envelope[T] {
	return Envelope[T]{Type: KindSuccess, Data: data}
}

// Failure wraps an error message.
func Failure(msg string) Envelope[string] {
	return Envelope[string]{Type: KindError, Data: msg}
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeSuccess[T any](w http.ResponseWriter, logger *zap.Logger, data T) {
	writeJSON(w, logger, http.StatusOK, Success(data))
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, Failure(msg))
}
