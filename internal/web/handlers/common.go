package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/punchclock/internal/attendance"
	"github.com/kozaktomas/punchclock/internal/logging"
	"github.com/kozaktomas/punchclock/internal/punch"
	"github.com/kozaktomas/punchclock/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// maxBodyBytes bounds JSON bodies; base64 images are the largest payload.
const maxBodyBytes = 8 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a request body into dst, rejecting unknown fields, and
// runs struct validation. It writes the 400 response itself and returns false
// on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, formatBindingError(err, dst))
		return false
	}
	if dec.More() {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, formatBindingError(err, dst))
		return false
	}
	return true
}

// formatBindingError turns decode and validation errors into client messages.
// dst resolves struct field names in validator parameters to JSON names.
func formatBindingError(err error, dst any) string {
	if errors.Is(err, io.EOF) {
		return "request body is empty"
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("invalid JSON at byte offset %d", syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field '%s' should be of type %s", typeErr.Field, typeErr.Type.String())
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		out := make([]string, 0, len(ve))
		for _, fe := range ve {
			out = append(out, formatFieldError(fe, dst))
		}
		return strings.Join(out, ", ")
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return "unknown field " + field
	}
	return errInvalidRequestBody
}

func formatFieldError(fe validator.FieldError, dst any) string {
	switch fe.Tag() {
	case "required", "required_without_all":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "email":
		return fmt.Sprintf("field '%s' must be a valid email", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("field '%s' must have length %s", fe.Field(), fe.Param())
	case "excluded_with":
		return fmt.Sprintf("field '%s' cannot be combined with %s", fe.Field(), jsonFieldNames(dst, fe.Param()))
	case "required_with":
		return fmt.Sprintf("field '%s' is required together with %s", fe.Field(), jsonFieldNames(dst, fe.Param()))
	}
	return fmt.Sprintf("field '%s' failed validation for '%s'", fe.Field(), fe.Tag())
}

// jsonFieldNames maps a space separated list of struct field names, as used
// in cross-field validator tags, to the JSON names of dst's fields.
func jsonFieldNames(dst any, param string) string {
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	names := strings.Fields(param)
	out := make([]string, 0, len(names))
	for _, name := range names {
		jsonName := ""
		if t != nil && t.Kind() == reflect.Struct {
			if f, ok := t.FieldByName(name); ok {
				jsonName = strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			}
		}
		if jsonName == "" || jsonName == "-" {
			jsonName = "another field"
		}
		out = append(out, "'"+jsonName+"'")
	}
	return strings.Join(out, " or ")
}

// respondServiceError maps domain errors to HTTP responses. Unknown errors
// are logged and reported as 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var dupFace *punch.DuplicateFaceError
	switch {
	case errors.Is(err, punch.ErrValidation), errors.Is(err, attendance.ErrInvalidQuery):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, attendance.ErrAlreadyPunchedIn):
		respondError(w, http.StatusConflict, "Already punched IN today")
	case errors.Is(err, attendance.ErrAlreadyPunchedOut):
		respondError(w, http.StatusConflict, "Already punched OUT today")
	case errors.Is(err, attendance.ErrNoPunchInFound):
		respondError(w, http.StatusBadRequest, "No punch IN found for today")
	case errors.As(err, &dupFace):
		respondError(w, http.StatusConflict, "Face already registered to employee "+dupFace.EmployeeCode)
	case errors.Is(err, punch.ErrDuplicateEmail):
		respondError(w, http.StatusConflict, "Employee with this email already exists")
	case errors.Is(err, punch.ErrEmployeeNotFound):
		respondError(w, http.StatusNotFound, "Employee not found")
	case errors.Is(err, punch.ErrEmployeeInactive):
		respondError(w, http.StatusForbidden, "Employee is not active")
	case errors.Is(err, punch.ErrExtractorUnavailable):
		respondError(w, http.StatusServiceUnavailable, "Face extraction is not available")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "Request timed out")
	case errors.Is(err, context.Canceled):
		logging.FromContext(r.Context()).Info("request cancelled", "path", sanitizeForLog(r.URL.Path))
		respondError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		logging.FromContext(r.Context()).Error("request failed",
			"method", r.Method, "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// queryInt reads a positive integer query parameter, 0 when absent.
func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", punch.ErrValidation, key)
	}
	return n, nil
}

// orgID returns the organization the request is scoped to.
func orgID(r *http.Request) string {
	return middleware.OrgFromContext(r.Context())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
