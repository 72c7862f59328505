package domain

import (
	"errors"
	"fmt"

	"uchat/internal/validation"
)

// ValidationError reports why a value was rejected. Error returns a message
// suitable for showing to the user.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// rule maps a validator tag to the message shown when it fails.
type rule struct {
	tags     string
	messages map[string]string
}

func (r rule) check(field, v string) error {
	err := validation.Var(field, v, r.tags)
	if err == nil {
		return nil
	}
	var fe validation.FieldError
	if errors.As(err, &fe) {
		if msg, ok := r.messages[fe.Tag]; ok {
			return &ValidationError{Field: field, Reason: msg}
		}
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%s is not valid", field)}
	}
	return err
}

func lengthRule(label string, min, max int) rule {
	tags := fmt.Sprintf("required,max=%d", max)
	msgs := map[string]string{
		"required": label + " cannot be empty",
		"max":      fmt.Sprintf("%s must be at most %d characters", label, max),
	}
	if min > 0 {
		tags = fmt.Sprintf("required,min=%d,max=%d", min, max)
		msgs["min"] = fmt.Sprintf("%s must be at least %d characters", label, min)
	}
	return rule{tags: tags, messages: msgs}
}

var (
	usernameRule = lengthRule("User name", 3, 30)
	passwordRule = rule{
		tags: "required,min=8",
		messages: map[string]string{
			"required": "Password cannot be empty",
			"min":      "Password must be at least 8 characters",
		},
	}
	displayNameRule = rule{
		tags:     "max=30",
		messages: map[string]string{"max": "Display name must be at most 30 characters"},
	}
	emailRule = rule{
		tags: "required,uchat_email",
		messages: map[string]string{
			"required":    "Email cannot be empty",
			"uchat_email": "Email is not valid. Format: your_name@example.com",
		},
	}
)

type Username struct{ v string }

func NewUsername(s string) (Username, error) {
	if err := usernameRule.check("username", s); err != nil {
		return Username{}, err
	}
	return Username{v: s}, nil
}

func (u Username) String() string { return u.v }

func (u Username) MarshalText() ([]byte, error) { return []byte(u.v), nil }

func (u *Username) UnmarshalText(b []byte) error {
	v, err := NewUsername(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

type Password struct{ v string }

func NewPassword(s string) (Password, error) {
	if err := passwordRule.check("password", s); err != nil {
		return Password{}, err
	}
	return Password{v: s}, nil
}

// Reveal returns the plaintext password.
func (p Password) Reveal() string { return p.v }

func (p Password) String() string { return "********" }

func (p Password) MarshalText() ([]byte, error) { return []byte(p.v), nil }

func (p *Password) UnmarshalText(b []byte) error {
	v, err := NewPassword(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

type DisplayName struct{ v string }

func NewDisplayName(s string) (DisplayName, error) {
	if err := displayNameRule.check("display_name", s); err != nil {
		return DisplayName{}, err
	}
	return DisplayName{v: s}, nil
}

func (d DisplayName) String() string { return d.v }

func (d DisplayName) MarshalText() ([]byte, error) { return []byte(d.v), nil }

func (d *DisplayName) UnmarshalText(b []byte) error {
	v, err := NewDisplayName(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

type Email struct{ v string }

func NewEmail(s string) (Email, error) {
	if err := emailRule.check("email", s); err != nil {
		return Email{}, err
	}
	return Email{v: s}, nil
}

func (e Email) String() string { return e.v }

func (e Email) MarshalText() ([]byte, error) { return []byte(e.v), nil }

func (e *Email) UnmarshalText(b []byte) error {
	v, err := NewEmail(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
