package spclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind names a classified API failure. ErrorKind implements error so
// callers can match with errors.Is(err, KindNotFound).
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindNotAcceptable
	KindConflict
	KindGone
	KindLengthRequired
	KindPreconditionFailed
	KindPayloadTooLarge
	KindUnsupportedMediaType
	KindRangeNotSatisfiable
	KindUnprocessableEntity
	KindTooManyRequests
	KindInternalServerError
	KindNotImplemented
	KindServiceUnavailable
	KindGatewayTimeout
	KindInsufficientStorage
	KindBandwidthLimitExceeded
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                "UnknownError",
	KindBadRequest:             "BadRequest",
	KindUnauthorized:           "Unauthorized",
	KindForbidden:              "Forbidden",
	KindNotFound:               "NotFound",
	KindMethodNotAllowed:       "MethodNotAllowed",
	KindNotAcceptable:          "NotAcceptable",
	KindConflict:               "Conflict",
	KindGone:                   "Gone",
	KindLengthRequired:         "LengthRequired",
	KindPreconditionFailed:     "PreconditionFailed",
	KindPayloadTooLarge:        "PayloadTooLarge",
	KindUnsupportedMediaType:   "UnsupportedMediaType",
	KindRangeNotSatisfiable:    "RangeNotSatisfiable",
	KindUnprocessableEntity:    "UnprocessableEntity",
	KindTooManyRequests:        "TooManyRequests",
	KindInternalServerError:    "InternalServerError",
	KindNotImplemented:         "NotImplemented",
	KindServiceUnavailable:     "ServiceUnavailable",
	KindGatewayTimeout:         "GatewayTimeout",
	KindInsufficientStorage:    "InsufficientStorage",
	KindBandwidthLimitExceeded: "BandwidthLimitExceeded",
}

// statusKinds is the fixed set of mapped failure codes. Anything else that is
// not a success code classifies as KindUnknown.
var statusKinds = map[int]ErrorKind{
	http.StatusBadRequest:                   KindBadRequest,
	http.StatusUnauthorized:                 KindUnauthorized,
	http.StatusForbidden:                    KindForbidden,
	http.StatusNotFound:                     KindNotFound,
	http.StatusMethodNotAllowed:             KindMethodNotAllowed,
	http.StatusNotAcceptable:                KindNotAcceptable,
	http.StatusConflict:                     KindConflict,
	http.StatusGone:                         KindGone,
	http.StatusLengthRequired:               KindLengthRequired,
	http.StatusPreconditionFailed:           KindPreconditionFailed,
	http.StatusRequestEntityTooLarge:        KindPayloadTooLarge,
	http.StatusUnsupportedMediaType:         KindUnsupportedMediaType,
	http.StatusRequestedRangeNotSatisfiable: KindRangeNotSatisfiable,
	http.StatusUnprocessableEntity:          KindUnprocessableEntity,
	http.StatusTooManyRequests:              KindTooManyRequests,
	http.StatusInternalServerError:          KindInternalServerError,
	http.StatusNotImplemented:               KindNotImplemented,
	http.StatusServiceUnavailable:           KindServiceUnavailable,
	http.StatusGatewayTimeout:               KindGatewayTimeout,
	http.StatusInsufficientStorage:          KindInsufficientStorage,
	509:                                     KindBandwidthLimitExceeded,
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

func (k ErrorKind) Error() string { return k.String() }

// KindForStatus returns the error kind a failing status code maps to.
func KindForStatus(status int) ErrorKind {
	if kind, ok := statusKinds[status]; ok {
		return kind
	}
	return KindUnknown
}

// APIError is a classified, terminal API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("calling endpoint %s failed: %s (HTTP %d): %s", e.Endpoint, e.Kind, e.StatusCode, e.Body)
}

// Unwrap exposes the kind for errors.Is matching.
func (e *APIError) Unwrap() error { return e.Kind }

// KindOf extracts the error kind from err, if it carries an APIError.
func KindOf(err error) (ErrorKind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return KindUnknown, false
}

// Body is a successfully classified response payload.
type Body struct {
	// JSON is set when the content type indicated JSON.
	JSON json.RawMessage
	// Text holds the raw payload otherwise.
	Text string
}

// Decode unmarshals a JSON body into v.
func (b *Body) Decode(v any) error {
	if b == nil || b.JSON == nil {
		return fmt.Errorf("response has no JSON body")
	}
	return json.Unmarshal(b.JSON, v)
}

// Classify maps a raw response to a body or a typed error. It is total: every
// status code yields exactly one outcome. 204 returns (nil, nil).
func Classify(endpoint string, status int, contentType string, body []byte) (*Body, error) {
	isJSON := strings.Contains(strings.ToLower(contentType), "json")

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		if isJSON {
			if !json.Valid(body) {
				return nil, fmt.Errorf("calling endpoint %s: invalid JSON body", endpoint)
			}
			return &Body{JSON: json.RawMessage(body)}, nil
		}
		return &Body{Text: string(body)}, nil
	case http.StatusNoContent:
		return nil, nil
	}

	return nil, &APIError{
		Kind:       KindForStatus(status),
		StatusCode: status,
		Endpoint:   endpoint,
		Body:       string(body),
	}
}
