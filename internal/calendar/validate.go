package calendar

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("theme", func(fl validator.FieldLevel) bool {
			return Theme(fl.Field().String()).Valid()
		})
	})
	return validate
}

// ValidateMeta checks the index fields of a calendar.
func ValidateMeta(m Meta) error {
	if err := validatorInstance().Struct(m); err != nil {
		return fmt.Errorf("invalid calendar meta: %w", err)
	}
	return nil
}

// ValidateFormData checks the editor configuration of a calendar.
func ValidateFormData(f FormData) error {
	if err := validatorInstance().Struct(f); err != nil {
		return fmt.Errorf("invalid calendar form data: %w", err)
	}
	return nil
}

// Validate checks a document against the structural rules of the model:
// known theme and weekdays, quantities of at least 1, day moment shares
// within 0..100, and at least one day moment.
func Validate(doc Document) error {
	if err := validatorInstance().Struct(doc); err != nil {
		return fmt.Errorf("invalid calendar document: %w", err)
	}
	return nil
}
