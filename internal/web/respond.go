package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/recommend"
	"github.com/justestif/vibestream/internal/store"
)

var validate = validator.New()

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger().Warn().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// handleError maps domain errors onto status codes. Unexpected errors are
// logged and reported with the generic fallback message.
func handleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "Already exists")
	default:
		logging.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeBody reads a JSON body into v and runs struct validation on it.
// The returned error is a *store.ValidationError suitable for a 400.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &store.ValidationError{Message: "Invalid request body"}
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &store.ValidationError{Message: "Invalid request body"}
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "url":
		msg = fmt.Sprintf("%s must be a URL", fe.Field())
	case "gt", "gte", "min":
		msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return &store.ValidationError{Field: strings.ToLower(fe.Field()), Message: msg}
}

// parseLimit reads ?limit=. Missing, non-numeric and non-positive values
// fall back to the default; anything above ceiling is capped.
func parseLimit(raw string, ceiling int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		n = recommend.DefaultLimit
	}
	if ceiling > 0 && n > ceiling {
		n = ceiling
	}
	return n
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &store.ValidationError{Field: name, Message: "Invalid " + name}
	}
	return id, nil
}
