package guard

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// ValidateUser runs every field rule and collects all failures before
// failing, so callers see the complete set of problems at once.
func ValidateUser(u *User) error {
	if u == nil {
		return goerrors.New("user must not be nil", goerrors.CategoryBadInput)
	}

	err := validation.ValidateStruct(u,
		validation.Field(&u.Username, validation.Required, validation.Length(1, 100)),
		validation.Field(&u.Email, validation.Required, is.Email),
		validation.Field(&u.Name, validation.Length(0, 200)),
	)
	if err == nil {
		return nil
	}

	richErr := goerrors.New("user failed validation", goerrors.CategoryValidation).
		WithTextCode("INVALID_USER")

	if fieldErrs, ok := err.(validation.Errors); ok {
		meta := make(map[string]any, len(fieldErrs))
		for field, ferr := range fieldErrs {
			meta[field] = ferr.Error()
		}
		return richErr.WithMetadata(meta)
	}

	return richErr.WithMetadata(map[string]any{"error": err.Error()})
}

// ValidatePasswordInput applies the minimal structural password rules. The
// actual strength policy is an external validator.
func ValidatePasswordInput(password string) error {
	if password == "" {
		return ErrNoEmptyString
	}
	return validation.Validate(password, validation.Length(1, 72))
}
