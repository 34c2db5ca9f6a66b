// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/base64"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/fieldcrypt/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// KeyChain validates a comma-separated "id:base64key" list, the format used
// for search key chains in environment configuration.
var KeyChain = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_key_chain_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	for entry := range strings.SplitSeq(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return validation.NewError("validation_key_chain", "entries must be id:base64key")
		}
		if _, err := base64.StdEncoding.DecodeString(parts[1]); err != nil {
			return validation.NewError("validation_key_chain_base64", "key material must be valid base64")
		}
	}
	return nil
})
