package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// dataset paths are slash separated lowercase segments, e.g. catalog/gold/ra
	datasetPathPattern = regexp.MustCompile(`^[a-z0-9_.\-]+(/[a-z0-9_.\-]+)*$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("nside", func(fl validator.FieldLevel) bool {
		return IsNside(fl.Field().Int())
	})
	validate.RegisterValidation("dspath", func(fl validator.FieldLevel) bool {
		return ValidateDatasetPath(fl.Field().String()) == nil
	})
}

// ValidateStruct checks the struct tags of a config section.
func ValidateStruct(v any) error {
	if v == nil {
		return errors.New("config section cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateDatasetPath validates an archive path such as catalog/gold/ra.
func ValidateDatasetPath(path string) error {
	if path == "" {
		return errors.New("dataset path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("dataset path '%s' must not contain '..'", path)
	}
	if !datasetPathPattern.MatchString(path) {
		return fmt.Errorf("dataset path '%s' is invalid (lowercase segments separated by '/')", path)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		switch e.Tag() {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min", "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max", "lte":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gt":
			return fmt.Errorf("%s: must be greater than %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s]", field, param)
		case "nside":
			return fmt.Errorf("%s: must be a power of two in [1, %d]", field, MaxNside)
		case "dspath":
			return fmt.Errorf("%s: invalid dataset path", field)
		case "dive":
			return fmt.Errorf("%s: invalid element in array", field)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}

	return err
}
