// Package validate checks client input at the API boundary.
//
// Rules are go-playground/validator tags. Besides the built-in tags the shared
// engine knows "phone" (E.164) and "name" (1 to MaxNameLen characters once trimmed).
// Failures come back as *FieldError named after the json key of the field.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Limits on profile fields.
const (
	MinAge     = 13
	MaxAge     = 120
	MaxNameLen = 50
)

// Custom tag names registered by Register.
const (
	TagPhone = "phone"
	TagName  = "name"
)

// ErrInvalid matches every *FieldError via errors.Is.
var ErrInvalid = errors.New("validation failed")

var phoneRE = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// Messages for fields whose rule spans several tags.
var fieldMessages = map[string]string{
	"age":     fmt.Sprintf("must be between %d and %d", MinAge, MaxAge),
	"country": "must be a 3-letter uppercase country code",
}

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Is lets errors.Is(err, ErrInvalid) match.
func (e *FieldError) Is(target error) bool {
	return target == ErrInvalid
}

var (
	engineOnce sync.Once
	engine     *validator.Validate
)

// Engine returns the shared validator with the custom rules registered.
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		Register(engine)
	})
	return engine
}

// Register installs the phone and name rules on v and makes it report json field names.
// Also used on gin's binding engine so request tags share the same rules.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(fieldName)
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation(TagPhone, func(fl validator.FieldLevel) bool {
		return phoneRE.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation(TagName, func(fl validator.FieldLevel) bool {
		n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
		return n >= 1 && n <= MaxNameLen
	})
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return Translate(Engine().Struct(s))
}

// Var validates a single value against tag, reporting failures under field.
func Var(field string, value any, tag string) error {
	err := Engine().Var(value, tag)
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		return &FieldError{Field: field, Message: message(field, ve[0])}
	}
	return err
}

// Translate turns validator.ValidationErrors into a *FieldError for the first failing field.
// Other errors, nil included, are returned as is.
func Translate(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err
	}
	fe := ve[0]
	return &FieldError{Field: fe.Field(), Message: message(fe.Field(), fe)}
}

func message(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case TagPhone:
		return "invalid phone number format, use E.164 (e.g. +14155550123)"
	case TagName:
		return fmt.Sprintf("must be 1 to %d characters", MaxNameLen)
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	if msg, ok := fieldMessages[field]; ok {
		return msg
	}
	switch fe.Tag() {
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "number", "numeric":
		return "must contain only digits"
	}
	return "is invalid"
}

// fieldName reports the json key of a struct field, or its snake_case Go name.
func fieldName(f reflect.StructField) string {
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return snakeCase(f.Name)
}

func snakeCase(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(rs[i-1]) || (i+1 < len(rs) && unicode.IsLower(rs[i+1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizePhone strips spaces, dashes and brackets and ensures a leading "+".
func SanitizePhone(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '+' || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, phone)
	if cleaned == "" {
		return ""
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = "+" + cleaned
	}
	return cleaned
}

// Phone checks E.164 form: "+" then 2 to 15 digits, the first of them 1-9.
func Phone(phone string) error {
	return Var("phone_number", phone, TagPhone)
}

// OTPCode checks that code is exactly length ASCII digits.
func OTPCode(code string, length int) error {
	if err := Engine().Var(code, fmt.Sprintf("number,len=%d", length)); err != nil {
		return &FieldError{Field: "otp_code", Message: fmt.Sprintf("OTP must be %d digits", length)}
	}
	return nil
}

// Name trims s and checks it holds 1 to MaxNameLen characters.
func Name(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	if err := Var(field, s, TagName); err != nil {
		return "", err
	}
	return s, nil
}
