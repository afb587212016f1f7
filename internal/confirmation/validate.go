package confirmation

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Message keys reported by ValidateSignup.
const (
	MsgNotBlank        = "validation.not_blank"
	MsgValidEmail      = "validation.valid_email"
	MsgPasswordMinSize = "validation.password_min_size"
	MsgPasswordsMatch  = "validation.passwords_match"
)

const MinPasswordLength = 10

// SignupForm is the raw signup form. Field names follow the HTML form.
type SignupForm struct {
	Username string
	Name     string
	Pass     string
	Confirm  string
}

// Violations maps a form field to the message keys it failed.
type Violations map[string][]string

func (v Violations) add(field, key string) {
	v[field] = append(v[field], key)
}

// Has reports whether field has at least one violation.
func (v Violations) Has(field string) bool {
	return len(v[field]) > 0
}

// First returns the first message key recorded for field, or "".
func (v Violations) First(field string) string {
	if keys := v[field]; len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// ValidateSignup checks f before it reaches the workflow. An empty result
// means the form is valid.
func ValidateSignup(f SignupForm) Violations {
	v := Violations{}

	if strings.TrimSpace(f.Username) == "" {
		v.add("username", MsgNotBlank)
	} else if !validEmail(f.Username) {
		v.add("username", MsgValidEmail)
	}

	if strings.TrimSpace(f.Name) == "" {
		v.add("name", MsgNotBlank)
	}

	if utf8.RuneCountInString(f.Pass) < MinPasswordLength {
		v.add("pass", MsgPasswordMinSize)
	}

	if f.Pass != f.Confirm {
		v.add("pass", MsgPasswordsMatch)
		v.add("confirm", MsgPasswordsMatch)
	}

	return v
}

// validEmail accepts a bare address only; display-name forms are rejected.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}
