package services

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxNameBytes     = 255
	maxEmailBytes    = 255
	maxPasswordBytes = 72 // bcrypt ignores anything longer
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateName(errs *ValidationError, name string) {
	switch {
	case strings.TrimSpace(name) == "":
		errs.Add("name", "The name field is required.")
	case len(name) > maxNameBytes:
		errs.Add("name", fmt.Sprintf("The name may not be greater than %d characters.", maxNameBytes))
	}
}

func validateEmail(errs *ValidationError, email string) {
	switch {
	case email == "":
		errs.Add("email", "The email field is required.")
	case len(email) > maxEmailBytes:
		errs.Add("email", fmt.Sprintf("The email may not be greater than %d characters.", maxEmailBytes))
	case !isEmail(email):
		errs.Add("email", "The email must be a valid email address.")
	}
}

func validatePassword(errs *ValidationError, password string, minLength int) {
	switch {
	case password == "":
		errs.Add("password", "The password field is required.")
	case utf8.RuneCountInString(password) < minLength:
		errs.Add("password", fmt.Sprintf("The password must be at least %d characters.", minLength))
	case len(password) > maxPasswordBytes:
		errs.Add("password", fmt.Sprintf("The password may not be greater than %d bytes.", maxPasswordBytes))
	}
}

// isEmail accepts bare addresses only, no display names or angle brackets.
func isEmail(value string) bool {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return false
	}
	return addr.Address == value && addr.Name == ""
}
