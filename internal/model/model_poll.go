package model

// SET delivery error codes per RFC 8935/8936 and the SSF profile.
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidIssuer        = "invalid_issuer"
	ErrorInvalidAudience      = "invalid_audience"
	ErrorInvalidState         = "invalid_state"
	ErrorProcessingError      = "processing_error"
	ErrorAuthenticationFailed = "authentication_failed"
	ErrorAccessDenied         = "access_denied"
)

// SetErrorType reports one failed SET in a poll request's setErrs member.
type SetErrorType struct {
	Error       string `json:"err"`
	Description string `json:"description,omitempty"`
}

// SetDeliveryErr is the error body returned from a push delivery endpoint (RFC 8935 §2.4).
type SetDeliveryErr struct {
	ErrCode     string `json:"err"`
	Description string `json:"description,omitempty"`
}

/*
PollParameters is the request body of the poll endpoint per RFC 8936 §2.4.
A request with no acks is a pure poll; one with acks and MaxEvents > 0 is
poll-and-ack; MaxEvents = 0 with acks present is acknowledge-only.
*/
type PollParameters struct {
	MaxEvents         int                     `json:"maxEvents,omitempty"`
	ReturnImmediately bool                    `json:"returnImmediately"`
	Acks              []string                `json:"ack,omitempty"`
	SetErrs           map[string]SetErrorType `json:"setErrs,omitempty"`

	// TimeoutSecs bounds a long-poll wait. Not part of the wire request.
	TimeoutSecs int `json:"-"`
}

func (p PollParameters) IsAckOnly() bool {
	return p.MaxEvents == 0 && (len(p.Acks) > 0 || len(p.SetErrs) > 0)
}

// PollResponse is the poll endpoint response body: jti to encoded SET.
type PollResponse struct {
	Sets          map[string]string `json:"sets"`
	MoreAvailable bool              `json:"moreAvailable,omitempty"`
}
