// Blendix Serial Core
// Copyright (c) 2026 The Blendix Serial Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Blendix Serial Core.
//
// Blendix Serial Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Blendix Serial Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Blendix Serial Core.  If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ELECTRONICSTREE/blendixserial/pkg/models"
	"github.com/go-playground/validator/v10"
)

// ValidationError wraps validator errors with readable messages.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is a single failed field.
type FieldError struct {
	Value     any
	Namespace string
	Tag       string
	Message   string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, fe := range e.Fields {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, "; ")
}

func newValidationError(errs validator.ValidationErrors) *ValidationError {
	ve := &ValidationError{
		Fields: make([]FieldError, len(errs)),
	}
	for i, fe := range errs {
		ve.Fields[i] = FieldError{
			Namespace: fe.Namespace(),
			Tag:       fe.Tag(),
			Value:     fe.Value(),
			Message:   formatValidationError(fe),
		}
	}
	return ve
}

func formatValidationError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Namespace())
	switch fe.Tag() {
	case "axes":
		return fmt.Sprintf("%s must be a combination of X, Y and Z, got %q", field, fe.Value())
	case "transform":
		return fmt.Sprintf("%s must be location, rotation_euler or scale, got %q", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "url":
		return field + " must be a valid URL (e.g., tcp://localhost:1883)"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("axes", validateAxes)
	_ = v.RegisterValidation("transform", validateTransform)
	return v
}

var validate = newValidator()

// Validate checks every field of v against its validate tags.
func Validate(v *Values) error {
	if err := validate.Struct(v); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return newValidationError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateVar checks a single value against a validate tag.
func ValidateVar(field any, tag string) error {
	if err := validate.Var(field, tag); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return newValidationError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// validateAxes accepts "", "X", "XY", "xyz" etc.
func validateAxes(fl validator.FieldLevel) bool {
	_, err := models.ParseAxisMask(fl.Field().String())
	return err == nil
}

// validateTransform accepts an empty value, which means location.
func validateTransform(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	_, err := models.ParseTransformKind(val)
	return err == nil
}
