package handlers

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/clipstream/backend/internal/apperrors"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the shared validator and folds failures into the
// validation error kind so handlers can pass them straight to respondError.
func validateStruct(v any) error {
	if err := requestValidator.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	return nil
}
