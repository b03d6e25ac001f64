// Package validation checks configuration sections and convention edits with
// validator/v10 and reports failures as domain validation errors.
package validation

import (
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/foldkeeper/foldkeeper/internal/errors"
)

// Validator reports field failures keyed by their JSON name.
type Validator struct {
	v *validator.Validate
}

// New returns a validator that also knows the relpath and extension tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonName)

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("relpath", isRelPath)
	_ = v.RegisterValidation("extension", isExtension)

	return &Validator{v: v}
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "":
		return fld.Name
	case "-":
		return ""
	}
	return name
}

// isRelPath accepts slash separated paths that stay inside the root.
func isRelPath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return false
	}
	clean := path.Clean(p)
	return clean != ".." && !strings.HasPrefix(clean, "../")
}

// isExtension accepts "png" or ".png" but nothing with separators or spaces.
func isExtension(fl validator.FieldLevel) bool {
	ext := strings.TrimPrefix(fl.Field().String(), ".")
	return ext != "" && !strings.ContainsAny(ext, `/\ .`)
}

// Validate checks s and returns a *errors.Error with a field map as details.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = message(fe)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

func message(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "relpath":
		return "must be a relative path inside the root"
	case "extension":
		return "must be a file extension such as .png"
	case "hexcolor":
		return "must be a hex color such as #4caf50"
	case "hostname_port":
		return "must be a host:port address"
	case "oneof":
		return "must be one of: " + param
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", param)
		}
		return "must be at most " + param
	case "gte":
		return "must be greater than or equal to " + param
	case "lte":
		return "must be less than or equal to " + param
	case "gt":
		return "must be greater than " + param
	}
	return "is invalid"
}
