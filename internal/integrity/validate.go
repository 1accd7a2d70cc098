package integrity

import (
	"strings"
	"unicode/utf8"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type fieldErrors []apperr.FieldError

func (f *fieldErrors) add(field, rule, param, msg string) {
	*f = append(*f, apperr.FieldError{Field: field, Rule: rule, Param: param, Message: msg})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return apperr.Validation("Invalid request body", apperr.Fields{Fields: f})
}

func (f *fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "required", "", "is required")
	}
}

func (f *fieldErrors) optionalID(field, value string) {
	if value == "" {
		return
	}
	if validate.Var(value, "uuid") != nil {
		f.add(field, "uuid", "", "must be a UUID")
	}
}

func validateRegistration(username, email, password string) error {
	var f fieldErrors

	if utf8.RuneCountInString(user.NormalizeUsername(username)) < user.MinUsernameLen {
		f.add("username", "min", "2", "must be at least 2 characters")
	}

	// the shape check mirrors \S+@\S+\.\S+ on top of the RFC check
	normalized := user.NormalizeEmail(email)
	if validate.Var(normalized, "required,email") != nil || !strings.Contains(normalized[strings.LastIndex(normalized, "@")+1:], ".") {
		f.add("email", "email", "", "must be a valid email address")
	}

	if utf8.RuneCountInString(password) < user.MinPasswordLen {
		f.add("password", "min", "6", "must be at least 6 characters")
	}

	return f.err()
}
