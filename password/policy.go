package password

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrWeak is wrapped by every Policy rejection.
var ErrWeak = errors.New("password does not meet policy")

// Policy is the strength rule applied to new passwords.
type Policy struct {
	MinLength int // in characters
	MaxLength int // in bytes; 0 means DefaultMaxPasswordBytes
}

// Check returns an error wrapping ErrWeak when pw violates the policy.
func (p Policy) Check(pw string) error {
	if pw == "" {
		return fmt.Errorf("%w: empty", ErrWeak)
	}
	minLen := p.MinLength
	if minLen < 1 {
		minLen = 1
	}
	if utf8.RuneCountInString(pw) < minLen {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeak, minLen)
	}
	maxLen := p.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPasswordBytes
	}
	if len(pw) > maxLen {
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeak, maxLen)
	}
	return nil
}
