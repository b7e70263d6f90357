// SPDX-License-Identifier: MIT

// Package validate collects field-level configuration errors so a single
// load reports every problem at once.
package validate

import (
	"fmt"
	"net/netip"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the combined result of a Validator run.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual field errors.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, 0, len(e.errors))
	for _, fe := range e.errors {
		msgs = append(msgs, fe.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator accumulates errors. The zero value is ready to use.
type Validator struct {
	errors []Error
}

// New returns an empty Validator.
func New() *Validator { return &Validator{} }

// AddError records a failed field.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) check(ok bool, field string, value any, format string, args ...any) {
	if !ok {
		v.AddError(field, fmt.Sprintf(format, args...), value)
	}
}

// IsValid reports whether nothing was recorded.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Errors returns what was recorded so far.
func (v *Validator) Errors() []Error { return v.errors }

// Err returns a ValidationError holding a copy of the recorded errors, or
// nil.
func (v *Validator) Err() error {
	if v.IsValid() {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// IPv4 accepts dotted-quad addresses only; IPv4-mapped IPv6 is rejected.
func (v *Validator) IPv4(field, value string) {
	if value == "" {
		v.AddError(field, "address cannot be empty", value)
		return
	}
	addr, err := netip.ParseAddr(value)
	v.check(err == nil && addr.Is4(), field, value, "invalid IPv4 address %q", value)
}

var macPattern = regexp.MustCompile(`^(?:[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}|[0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5}|[0-9A-Fa-f]{12})$`)

// IsMAC reports whether s is a MAC in colon, dash or bare hex notation.
// Separators must not be mixed.
func IsMAC(s string) bool {
	return macPattern.MatchString(strings.TrimSpace(s))
}

// MAC validates a link-layer address.
func (v *Validator) MAC(field, value string) {
	if value == "" {
		v.AddError(field, "MAC address cannot be empty", value)
		return
	}
	v.check(IsMAC(value), field, value, "invalid MAC address %q", value)
}

const (
	usernameMaxLen       = 20
	usernameInvalidChars = `"/[]:;|=,+*?<>`
)

// Username applies the Windows account name rules. A DOMAIN\ prefix is
// allowed and not counted.
func (v *Validator) Username(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "username cannot be empty", value)
		return
	}
	name := value
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	switch {
	case len(name) > usernameMaxLen:
		v.AddError(field, fmt.Sprintf("username exceeds %d characters", usernameMaxLen), value)
	case strings.ContainsAny(name, usernameInvalidChars):
		v.AddError(field, "username contains reserved characters", value)
	}
}

// Port accepts 1..65535.
func (v *Validator) Port(field string, port int) {
	v.check(port >= 1 && port <= 65535, field, port, "port must be between 1 and 65535, got %d", port)
}

// Range accepts minVal..maxVal inclusive.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	v.check(value >= minVal && value <= maxVal, field, value, "value must be between %d and %d, got %d", minVal, maxVal, value)
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	v.check(strings.TrimSpace(value) != "", field, value, "value cannot be empty")
}

// OneOf accepts only the listed values.
func (v *Validator) OneOf(field, value string, allowed []string) {
	v.check(slices.Contains(allowed, value), field, value, "value must be one of %v, got %q", allowed, value)
}

func (v *Validator) Positive(field string, value int) {
	v.check(value > 0, field, value, "value must be positive, got %d", value)
}

func (v *Validator) NonNegative(field string, value int) {
	v.check(value >= 0, field, value, "value cannot be negative, got %d", value)
}

func (v *Validator) PositiveDuration(field string, d time.Duration) {
	v.check(d > 0, field, d, "duration must be positive, got %s", d)
}

func (v *Validator) NonNegativeDuration(field string, d time.Duration) {
	v.check(d >= 0, field, d, "duration cannot be negative, got %s", d)
}
