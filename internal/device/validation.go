package device

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// addressRegex accepts six hex octets separated by ':' or '-'.
var addressRegex = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// ValidateAddress checks a hardware address against the MAC-address pattern.
func ValidateAddress(address string) error {
	if !addressRegex.MatchString(address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return nil
}

// RegisterAddressValidation adds the "hwaddr" tag, backed by
// ValidateAddress, to v.
func RegisterAddressValidation(v *validator.Validate) {
	//nolint:errcheck // Only fails for an empty tag or nil function
	v.RegisterValidation("hwaddr", func(fl validator.FieldLevel) bool {
		return ValidateAddress(fl.Field().String()) == nil
	})
}

// NormalizeAddress validates address and returns its canonical form:
// upper-case hex with ':' separators. Two addresses naming the same
// hardware always normalise to the same string.
func NormalizeAddress(address string) (string, error) {
	if err := ValidateAddress(address); err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(address, "-", ":")), nil
}
