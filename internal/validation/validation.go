// Package validation provides validation functions for hosts and request
// bodies. Host name rules follow what Checkmk accepts for host_config
// objects: letters, digits, dots, hyphens and underscores.
package validation

import (
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// maxHostNameLength is the longest host name Checkmk stores.
const maxHostNameLength = 240

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// ValidateHostName validates a Checkmk host name.
// Host names must start with a letter or digit and contain only letters,
// numbers, dots, hyphens, or underscores.
func ValidateHostName(name string) error {
	if name == "" {
		return fmt.Errorf("host name must not be empty")
	}
	if len(name) > maxHostNameLength {
		return fmt.Errorf("host name must be at most %d characters", maxHostNameLength)
	}
	if !isAlphaNum(name[0]) {
		return fmt.Errorf("host name must start with a letter or digit")
	}
	for _, b := range []byte(name) {
		if !isAlphaNum(b) && b != '-' && b != '.' && b != '_' {
			return fmt.Errorf("host names can only contain letters, numbers, dots, hyphens, or underscores")
		}
	}
	return nil
}

// ValidateHostAddress validates a single IPv4 or IPv6 address.
func ValidateHostAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address must not be empty")
	}
	if _, err := netip.ParseAddr(addr); err != nil {
		return fmt.Errorf("must be a valid IP address")
	}
	return nil
}

// ValidateDate validates a calendar date in domain.DateLayout.
func ValidateDate(value string) error {
	if _, err := time.Parse(domain.DateLayout, value); err != nil {
		return fmt.Errorf("must be a date in the form YYYY-MM-DD")
	}
	return nil
}

// ValidateEmail validates an email-like user identifier of the form
// user@domain.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email must not be empty")
	}
	atIndex := strings.Index(email, "@")
	if atIndex < 1 {
		return fmt.Errorf("email must contain '@' after at least one character")
	}
	if atIndex == len(email)-1 {
		return fmt.Errorf("email must have domain after '@'")
	}
	return nil
}

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report JSON field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("cmk_hostname", func(fl validator.FieldLevel) bool {
			return ValidateHostName(fl.Field().String()) == nil
		})
		structValidator = v
	})
	return structValidator
}

// ValidateStruct checks the validate tags of s. Failures are returned as
// ValidationErrors.
func ValidateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var errs ValidationErrors
	for _, fe := range fieldErrs {
		errs.Add(fieldPath(fe), fmt.Sprint(fe.Value()), message(fe))
	}
	return errs
}

// fieldPath drops the struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "ip":
		return "must be a valid IP address"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date in the form YYYY-MM-DD"
	case "cmk_hostname":
		if err := ValidateHostName(fmt.Sprint(fe.Value())); err != nil {
			return err.Error()
		}
		return "invalid host name"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must have at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "hostname|ip":
		return "must be a host name or IP address"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
