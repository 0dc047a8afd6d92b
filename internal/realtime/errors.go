package realtime

import "errors"

// Sentinel errors of the engine, wrapped with context and matched with errors.Is.
var (
	ErrAuthRejected        = errors.New("authentication rejected")
	ErrNotAMember          = errors.New("not a member of the room")
	ErrAlreadyRegistered   = errors.New("connection already registered")
	ErrNotRegistered       = errors.New("connection not registered")
	ErrDeliveryFailed      = errors.New("delivery failed")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidCommand      = errors.New("invalid command")
	ErrRateLimited         = errors.New("rate limit exceeded")
)

// Wire codes carried by rejection events.
const (
	CodeAuthRejected        = "auth_rejected"
	CodeNotAMember          = "not_a_member"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeInvalidRequest      = "invalid_request"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal"
)

// ErrorCode maps an error to the code reported to the client.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return CodeAuthRejected
	case errors.Is(err, ErrNotAMember):
		return CodeNotAMember
	case errors.Is(err, ErrUpstreamUnavailable):
		return CodeUpstreamUnavailable
	case errors.Is(err, ErrInvalidCommand):
		return CodeInvalidRequest
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

var codeMessages = map[string]string{
	CodeAuthRejected:        "authentication rejected",
	CodeNotAMember:          "not a member of this room",
	CodeUpstreamUnavailable: "service temporarily unavailable, try again",
	CodeInvalidRequest:      "invalid request",
	CodeRateLimited:         "too many messages, slow down",
	CodeInternal:            "internal error",
}

// ErrorMessage is the fixed text sent to clients for code. Error details stay
// in the server log.
func ErrorMessage(code string) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return codeMessages[CodeInternal]
}
