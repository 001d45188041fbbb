package auth

import "strings"

const passwordSpecialChars = `!@#$%^&*(),.?":{}|<>`

// PasswordValidation reports each rule of the fixed password policy
// separately so the UI can show which requirement is missing.
type PasswordValidation struct {
	HasMinLength   bool `json:"hasMinLength"`
	HasUpperCase   bool `json:"hasUpperCase"`
	HasNumber      bool `json:"hasNumber"`
	HasSpecialChar bool `json:"hasSpecialChar"`
}

// OK reports whether all four rules are satisfied.
func (v PasswordValidation) OK() bool {
	return v.HasMinLength && v.HasUpperCase && v.HasNumber && v.HasSpecialChar
}

// ValidatePassword checks a candidate password against the policy:
// at least 8 characters, an upper-case letter, a digit, and a special character.
func ValidatePassword(password string) PasswordValidation {
	v := PasswordValidation{HasMinLength: len(password) >= 8}
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			v.HasUpperCase = true
		case r >= '0' && r <= '9':
			v.HasNumber = true
		case strings.ContainsRune(passwordSpecialChars, r):
			v.HasSpecialChar = true
		}
	}
	return v
}
