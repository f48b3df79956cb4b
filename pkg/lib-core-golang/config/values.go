package config

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type paramValue interface {
	set(raw interface{}) error
}

// StringVal holds a loaded string param
type StringVal struct {
	val *string
}

// NewStringVal returns a preset value, used by tests of dependent packages
func NewStringVal(v string) StringVal {
	return StringVal{val: &v}
}

// Value returns the loaded string
func (v StringVal) Value() string {
	return *v.val
}

func (v StringVal) set(raw interface{}) error {
	s, ok := raw.(string)
	if !ok {
		return errors.Errorf("Expected string but got: %v(%[1]T)", raw)
	}
	*v.val = s
	return nil
}

// DurationVal holds a loaded duration param
type DurationVal struct {
	val *time.Duration
}

// NewDurationVal returns a preset value, used by tests of dependent packages
func NewDurationVal(v time.Duration) DurationVal {
	return DurationVal{val: &v}
}

// Value returns the loaded duration
func (v DurationVal) Value() time.Duration {
	return *v.val
}

// set accepts duration strings. Bare numbers are seconds
func (v DurationVal) set(raw interface{}) error {
	var d time.Duration
	switch typed := raw.(type) {
	case float64:
		d = time.Duration(typed * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(typed)
		if err != nil {
			seconds, convErr := strconv.ParseFloat(typed, 64)
			if convErr != nil {
				return errors.Wrapf(err, "Expected duration but got: %q", typed)
			}
			parsed = time.Duration(seconds * float64(time.Second))
		}
		d = parsed
	default:
		return errors.Errorf("Expected duration but got: %v(%[1]T)", raw)
	}
	if d < 0 {
		return errors.Errorf("Negative duration: %v", d)
	}
	*v.val = d
	return nil
}
