// Package httpx holds the JSON response and request decoding helpers shared
// by the HTTP handlers.
package httpx

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"libradesk/internal/apperr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

type errorBody struct {
	Error *apperr.Error `json:"error"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

// WriteError maps err to its HTTP status and writes {"error": {code, message}}.
// Uncoded errors are logged and reported as a generic internal error.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	var coded *apperr.Error
	if !errors.As(err, &coded) {
		log.Error("unhandled error", "error", err)
		coded = &apperr.Error{Code: apperr.CodeInternal, Message: "internal server error"}
	} else if coded.Code == apperr.CodeTransientIO || coded.Code == apperr.CodeInternal {
		log.Error("request failed", "code", coded.Code, "error", err)
		coded = &apperr.Error{Code: coded.Code, Message: coded.Message}
	}
	WriteJSON(w, coded.Code.HTTPStatus(), errorBody{Error: coded})
}

// DecodeAndValidate reads a JSON body into dst and runs its validate tags.
func DecodeAndValidate(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperr.Validation("failed to read request body")
	}
	if len(body) == 0 {
		return apperr.Validation("request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return Validate(dst)
}

// Validate runs the struct's validate tags and folds failures into one
// VALIDATION error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("%v", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Field()+" "+friendlyMessage(fe))
	}
	sort.Strings(msgs)
	return apperr.Validation("%s", strings.Join(msgs, "; "))
}

func friendlyMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "uuid":
		return "must be a valid UUID"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// QueryInt parses an integer query parameter, returning def when absent.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

// QueryBool parses an optional boolean query parameter.
func QueryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be true or false", name)
	}
	return &b, nil
}
