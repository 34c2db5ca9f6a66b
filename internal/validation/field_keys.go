package validation

import (
	"encoding/base64"
	"strconv"
	"strings"

	validation "github.com/jellydator/validation"
)

// FieldKeys validates a comma-separated "version:status:algorithm:base64key"
// list, the format used for read-only key records in environment
// configuration.
var FieldKeys = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_field_keys_type", "must be a string")
	}
	if s == "" {
		return nil // Let Required handle empty strings
	}
	for entry := range strings.SplitSeq(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 4)
		if len(parts) != 4 {
			return validation.NewError("validation_field_keys", "entries must be version:status:algorithm:base64key")
		}
		if v, err := strconv.ParseUint(parts[0], 10, 32); err != nil || v == 0 {
			return validation.NewError("validation_field_keys_version", "version must be a positive integer")
		}
		switch parts[1] {
		case "active", "retired", "revoked":
		default:
			return validation.NewError("validation_field_keys_status", "status must be active, retired or revoked")
		}
		switch parts[2] {
		case "aes-gcm", "chacha20-poly1305":
		default:
			return validation.NewError("validation_field_keys_algorithm", "algorithm must be aes-gcm or chacha20-poly1305")
		}
		if _, err := base64.StdEncoding.DecodeString(parts[3]); err != nil {
			return validation.NewError("validation_field_keys_base64", "key material must be valid base64")
		}
	}
	return nil
})
