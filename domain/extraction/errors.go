package extraction

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid job parameter or credential.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ResourceKind names the thing a lookup failed to find.
type ResourceKind string

const (
	ResourceSite ResourceKind = "site"
	ResourceList ResourceKind = "list"
)

// ResourceNotFoundError is returned when a site or list lookup yields nothing.
// It is a domain-level failure, distinct from an HTTP-classified one, although
// it may wrap the API error that caused it.
type ResourceNotFoundError struct {
	Kind     ResourceKind
	Name     string
	Location string
	Err      error
}

func (e *ResourceNotFoundError) Error() string {
	switch e.Kind {
	case ResourceList:
		return fmt.Sprintf("no list named %q found on site: %s", e.Name, e.Location)
	default:
		return fmt.Sprintf("no site with given url: %s found", e.Location)
	}
}

func (e *ResourceNotFoundError) Unwrap() error { return e.Err }

// AuthenticationError means no usable refresh or access token is available.
// The run cannot recover without the user re-authorizing the extractor.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "authentication failed, reauthorize the extractor in its configuration"
	}
	return "authentication failed, reauthorize the extractor in its configuration: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// IsResourceNotFound reports whether err carries a ResourceNotFoundError.
func IsResourceNotFound(err error) bool {
	var target *ResourceNotFoundError
	return errors.As(err, &target)
}
