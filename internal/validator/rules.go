package validator

import (
	"log"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules installs the domain-specific validation tags. Failing
// to register is a startup error, not a request error.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// 'iso-currency': three uppercase letters, e.g. USD, EUR.
	mustRegister("iso-currency", validateISOCurrency)

	// 'feature-limits': every quota in the map is non-negative and named.
	mustRegister("feature-limits", validateFeatureLimits)
}

func validateISOCurrency(fl validator.FieldLevel) bool {
	code, ok := fl.Field().Interface().(string)
	if !ok || len(code) != 3 {
		return false
	}
	for _, r := range code {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func validateFeatureLimits(fl validator.FieldLevel) bool {
	limits, ok := fl.Field().Interface().(map[string]int)
	if !ok {
		return false
	}
	for feature, quota := range limits {
		if feature == "" || quota < 0 {
			return false
		}
	}
	return true
}
