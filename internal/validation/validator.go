// Flux - Event Ingestion, State Projection, and Real-Time Fan-Out
// Copyright 2026 EckmanTech LLC
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EckmanTechLLC/flux

// Package validation provides struct validation using go-playground/validator.
// A singleton instance caches struct metadata and registers the Flux-specific
// rules used by API request types.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// namespaceNameRe matches valid namespace names: 3-32 chars of [a-z0-9-_].
var namespaceNameRe = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// streamNameRe matches valid stream names: dotted lowercase tokens.
var streamNameRe = regexp.MustCompile(`^[a-z0-9]+(\.[a-z0-9]+)*$`)

// getValidator returns the singleton validator, initializing it on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// namespace_name: 3-32 chars, lowercase alphanumeric + dash/underscore
		_ = validate.RegisterValidation("namespace_name", func(fl validator.FieldLevel) bool {
			return namespaceNameRe.MatchString(fl.Field().String())
		})

		// stream_name: dotted lowercase token grammar
		_ = validate.RegisterValidation("stream_name", func(fl validator.FieldLevel) bool {
			return streamNameRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// FieldError is a single field validation failure.
type FieldError struct {
	Field   string
	Tag     string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// RequestError aggregates the field failures for one request struct.
type RequestError struct {
	fields []FieldError
}

// Fields returns all field errors.
func (e *RequestError) Fields() []FieldError {
	return e.fields
}

func (e *RequestError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.fields))
	for i, f := range e.fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// ValidateStruct validates a struct and returns a *RequestError describing
// every failing field, or nil when the struct is valid.
func ValidateStruct(s interface{}) *RequestError {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{fields: []FieldError{{
			Field:   "",
			Tag:     "",
			Message: err.Error(),
		}}}
	}

	out := &RequestError{}
	for _, fe := range verrs {
		out.fields = append(out.fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "namespace_name":
		return fmt.Sprintf("%s must be 3-32 characters of [a-z0-9-_]", field)
	case "stream_name":
		return fmt.Sprintf("%s must be lowercase tokens separated by dots", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
