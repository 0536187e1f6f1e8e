// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// backupIDPattern accepts catalog ids like backup_20260314_020000 and
// backup_20260314_020000_1a2b3c4d, at most 100 chars, no path separators.
var backupIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,99}$`)

// FieldError is one failed rule. Field is the json or koanf key.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// StructValidationError lists every failed rule in field order.
type StructValidationError struct {
	Errors []FieldError
}

// Fields returns the failing keys, e.g. [max_backups retention_days].
func (e *StructValidationError) Fields() []string {
	out := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		out[i] = fe.Field
	}
	return out
}

func (e *StructValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

// GetValidator returns the process-wide validator. Struct metadata is cached
// inside it, so callers should not build their own.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(tagName)
		//nolint:errcheck // only fails for an empty tag name
		v.RegisterValidation("backupid", func(fl validator.FieldLevel) bool {
			return backupIDPattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// tagName reports the name operators use: json first, then koanf, then the
// Go field name.
func tagName(fld reflect.StructField) string {
	for _, key := range []string{"json", "koanf"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		switch name {
		case "":
			continue
		case "-":
			return ""
		default:
			return name
		}
	}
	return fld.Name
}

// ValidateStruct returns nil or a *StructValidationError.
func ValidateStruct(s interface{}) error {
	return convert(GetValidator().Struct(s))
}

// ValidateVar checks a single value, e.g. ValidateVar(id, "backupid").
func ValidateVar(field interface{}, tag string) error {
	return convert(GetValidator().Var(field, tag))
}

func convert(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// InvalidValidationError: a non-struct was passed to Struct
		return &StructValidationError{Errors: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &StructValidationError{Errors: make([]FieldError, len(verrs))}
	for i, fe := range verrs {
		out.Errors[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		}
	}
	return out
}

func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}

	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "backupid":
		return field + " must be a valid backup id"
	case "hostname_port":
		return field + " must be a host:port address"
	case "url":
		return field + " must be a URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s%s", field, param, unit)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s%s", field, param, unit)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
