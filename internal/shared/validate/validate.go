package validate

import (
	v10 "github.com/go-playground/validator/v10"

	"chat-service/internal/errs"
)

var v = v10.New(v10.WithRequiredStructEnabled())

// Struct checks `validate` tags and reports failures as validation errors.
func Struct(s any) error {
	if err := v.Struct(s); err != nil {
		return errs.Validationf("invalid request: %v", err)
	}
	return nil
}
