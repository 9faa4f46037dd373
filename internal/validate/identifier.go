package validate

import (
	"fmt"
	"regexp"
)

var (
	streamNameRe = regexp.MustCompile(`^[a-z0-9_-]+$`)
	usernameRe   = regexp.MustCompile(`^[a-z0-9_.-]+$`)
)

// InvalidIdentifierError describes a rejected identifier and why.
type InvalidIdentifierError struct {
	Kind   string
	Value  string
	Reason string
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Value, e.Reason)
}

// StreamName checks a machine stream name: lowercase letters, digits,
// hyphens and underscores only. Stream names are the canonical URL-safe
// key of a machine.
func StreamName(s string) error {
	if s == "" {
		return &InvalidIdentifierError{Kind: "stream name", Value: s, Reason: "must not be empty"}
	}
	if !streamNameRe.MatchString(s) {
		return &InvalidIdentifierError{
			Kind:   "stream name",
			Value:  s,
			Reason: "can only consist of lowercase English letters, numbers, hyphens or underscores",
		}
	}
	return nil
}

// Username checks a username as accepted at API boundaries before it is
// handed to the identity collaborator.
func Username(s string) error {
	if s == "" {
		return &InvalidIdentifierError{Kind: "username", Value: s, Reason: "must not be empty"}
	}
	if !usernameRe.MatchString(s) {
		return &InvalidIdentifierError{
			Kind:   "username",
			Value:  s,
			Reason: "can only consist of lowercase English letters, numbers, periods, hyphens or underscores",
		}
	}
	return nil
}
