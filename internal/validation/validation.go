// Package validation provides schema validation for exchange requests and
// process configuration
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wrale/sso-code-exchange/internal/apierror"
)

// Messages reported for violated constraints
const (
	MessageRequired    = "Required"
	MessageInvalidURL  = "Invalid url"
	MessageInvalidJSON = "Invalid JSON body"
)

// CodeRequest is the body accepted by the exchange endpoint
type CodeRequest struct {
	Code *string `json:"code" validate:"required,min=1"`
}

// ValidationError lists every violated constraint of a validated value
type ValidationError struct {
	Fields []apierror.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator checks values against their struct tag schema. It is safe for
// concurrent use and meant to be built once per process.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator reporting field paths by their json or
// envconfig names
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(fieldName)
	return &Validator{validate: v}
}

// Struct validates s and returns one FieldError per violated constraint,
// or nil when s is valid
func (v *Validator) Struct(s any) []apierror.FieldError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []apierror.FieldError{{Field: "", Message: err.Error()}}
	}

	fields := make([]apierror.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apierror.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return fields
}

// Check is Struct reported as an error
func (v *Validator) Check(s any) error {
	if fields := v.Struct(s); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// DecodeCodeRequest parses a JSON body and validates it. Malformed JSON is
// reported against the root path, a wrongly typed member against its own path.
func (v *Validator) DecodeCodeRequest(r io.Reader) (string, *apierror.Failure) {
	var req CodeRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return "", apierror.Validation([]apierror.FieldError{{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("Expected %s, received %s", expectedKind(typeErr.Type), typeErr.Value),
			}})
		}
		return "", apierror.Validation([]apierror.FieldError{{Field: "", Message: MessageInvalidJSON}})
	}
	// the body must hold exactly one JSON value
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", apierror.Validation([]apierror.FieldError{{Field: "", Message: MessageInvalidJSON}})
	}
	return v.ValidateCodeRequest(req)
}

// ValidateCodeRequest validates an already decoded request and returns the code
func (v *Validator) ValidateCodeRequest(req CodeRequest) (string, *apierror.Failure) {
	if fields := v.Struct(req); len(fields) > 0 {
		return "", apierror.Validation(fields)
	}
	return *req.Code, nil
}

func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "envconfig"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return ""
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MessageRequired
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("String must contain at least %s character(s)", fe.Param())
		}
		return fmt.Sprintf("Must be at least %s", fe.Param())
	case "url", "http_url":
		return MessageInvalidURL
	default:
		return fmt.Sprintf("Failed on the %q constraint", fe.Tag())
	}
}

func expectedKind(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map:
		return "object"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.Kind().String()
	}
}
