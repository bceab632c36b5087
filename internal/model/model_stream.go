package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Delivery method URIs per RFC 8935 (push) and RFC 8936 (poll)
const (
	DeliveryPoll = "https://schemas.openid.net/secevent/risc/delivery-method/poll"
	DeliveryPush = "https://schemas.openid.net/secevent/risc/delivery-method/push"
)

// Stream operational status values. Events are never routed to a paused or
// disabled stream.
const (
	StreamStatusEnabled  = "enabled"
	StreamStatusPaused   = "paused"
	StreamStatusDisabled = "disabled"
)

const StreamPollBatchSize = 5

type PushDeliveryMethod struct {
	Method              string `json:"method"`                         // DeliveryPush
	EndpointUrl         string `json:"endpoint_url"`                   // The URL where events are pushed through HTTP POST. This is set by the Receiver.
	AuthorizationHeader string `json:"authorization_header,omitempty"` // The HTTP Authorization header that the Transmitter MUST set with each event delivery.
}

type PollDeliveryMethod struct {
	Method              string `json:"method"`                 // DeliveryPoll
	EndpointUrl         string `json:"endpoint_url,omitempty"` // The URL where events can be retrieved from. This is specified by the Transmitter.
	AuthorizationHeader string `json:"authorization_header,omitempty"`
}

type OneOfStreamConfigurationDelivery struct {
	PushDeliveryMethod *PushDeliveryMethod `json:"push,omitempty"`
	PollDeliveryMethod *PollDeliveryMethod `json:"poll,omitempty"`
}

func (d *OneOfStreamConfigurationDelivery) GetMethod() string {
	if d == nil {
		return ""
	}
	if d.PushDeliveryMethod != nil {
		return d.PushDeliveryMethod.Method
	}
	if d.PollDeliveryMethod != nil {
		return d.PollDeliveryMethod.Method
	}
	return ""
}

// StreamConfiguration is the transmitter-held subscription record exchanged
// over the stream management API.
type StreamConfiguration struct {
	Id              string   `json:"stream_id" bson:"id"`
	Iss             string   `json:"iss"`
	Aud             []string `json:"aud"`
	EventsSupported []string `json:"events_supported,omitempty"`
	EventsRequested []string `json:"events_requested,omitempty"`
	EventsDelivered []string `json:"events_delivered,omitempty"`

	Delivery *OneOfStreamConfigurationDelivery `json:"delivery,omitempty"`

	MinVerificationInterval int `json:"min_verification_interval,omitempty"`

	IssuerJWKSUrl string `json:"issuerJWKSUrl,omitempty"`
}

// StreamStateRecord is stored in the provider stream collection
type StreamStateRecord struct {
	Id primitive.ObjectID `bson:"_id"`
	StreamConfiguration
	ProjectId  string    `json:"project_id,omitempty" bson:"project_id,omitempty"`
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
	ModifiedAt time.Time `json:"modifiedAt" bson:"modified_at"`

	// Status is one of StreamStatusEnabled, StreamStatusPaused, StreamStatusDisabled
	Status string `json:"status" bson:"status"`

	// StatusReason holds the reason a stream was paused or disabled
	StatusReason string `json:"reason,omitempty" bson:"reason,omitempty"`
}

func (ss *StreamStateRecord) Update(mod *StreamStateRecord) {
	ss.Status = mod.Status
	ss.StatusReason = mod.StatusReason
	ss.StreamConfiguration = mod.StreamConfiguration
	ss.ModifiedAt = mod.ModifiedAt
}

func (ss *StreamStateRecord) IsEnabled() bool {
	return ss.Status == StreamStatusEnabled
}

// StreamStatus is the request/response body for the stream status operation.
type StreamStatus struct {
	StreamId string `json:"stream_id,omitempty"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

/*
TransmitterConfiguration is the discovery document returned from
/.well-known/ssf-configuration per the OpenID Shared Signals Framework spec.
*/
type TransmitterConfiguration struct {
	Issuer                   string   `json:"issuer"`
	JwksUri                  string   `json:"jwks_uri"`
	DeliveryMethodsSupported []string `json:"delivery_methods_supported,omitempty"`
	ConfigurationEndpoint    string   `json:"configuration_endpoint,omitempty"`
	StatusEndpoint           string   `json:"status_endpoint,omitempty"`
	VerificationEndpoint     string   `json:"verification_endpoint,omitempty"`
}

// VerificationRequest is the body of POST /verify.
type VerificationRequest struct {
	StreamId string `json:"stream_id"`
	State    string `json:"state,omitempty"`
}

/*
VerificationState holds the receiver's pending challenge nonce for one stream.
At most one pending state exists per stream; issuing a new verification
supersedes the prior one. Entries expire after VerificationStateTtl.
*/
type VerificationState struct {
	StreamId  string    `json:"streamId" bson:"stream_id"`
	State     string    `json:"state" bson:"state"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

const VerificationStateTtl = 10 * time.Minute

func (v *VerificationState) IsExpired() bool {
	return time.Now().After(v.CreatedAt.Add(VerificationStateTtl))
}
