package goEvent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
)

// EventKind classifies an event type URI into one of the supported families.
type EventKind int

const (
	KindGeneric EventKind = iota
	KindCaep
	KindRisc
	KindVerification
	KindStreamUpdated
)

func (k EventKind) String() string {
	switch k {
	case KindCaep:
		return "caep"
	case KindRisc:
		return "risc"
	case KindVerification:
		return "verification"
	case KindStreamUpdated:
		return "stream-updated"
	default:
		return "generic"
	}
}

// registry maps event type URIs to kinds. Built once at package init and
// never mutated afterwards.
var registry = buildRegistry()

func buildRegistry() map[string]EventKind {
	reg := map[string]EventKind{}
	for _, uri := range model.GetCaepEvents() {
		reg[uri] = KindCaep
	}
	for _, uri := range model.GetRiscEvents() {
		reg[uri] = KindRisc
	}
	reg[model.EventVerification] = KindVerification
	reg[model.EventSseVerification] = KindVerification
	reg[model.EventStreamUpdated] = KindStreamUpdated
	reg[model.EventSseStreamUpdated] = KindStreamUpdated
	return reg
}

/*
Classify returns the family for an event type URI. Unregistered URIs classify
as KindGeneric rather than failing so unknown event types never abort
processing of a token.
*/
func Classify(eventUri string) EventKind {
	if kind, ok := registry[eventUri]; ok {
		return kind
	}
	return KindGeneric
}

// payloadFields are the claim names bound to typed SecurityEvent fields.
var payloadFields = map[string]bool{
	"subject": true, "sub_id": true, "event_timestamp": true,
	"initiating_entity": true, "reason_admin": true, "reason_user": true,
	"state": true, "status": true,
}

/*
SecurityEvent is one typed event extracted from a SET. Type is the map key
from the token events claim, not part of the payload body. Subject falls back
to the token-level subject when the payload carries none. Claims retains the
payload members not bound to a typed field.
*/
type SecurityEvent struct {
	Type string    `json:"-"`
	Kind EventKind `json:"-"`

	Subject        *goSet.SubjectIdentifier `json:"subject,omitempty"`
	EventTimestamp int64                    `json:"event_timestamp,omitempty"`

	InitiatingEntity string            `json:"initiating_entity,omitempty"`
	ReasonAdmin      map[string]string `json:"reason_admin,omitempty"`
	ReasonUser       map[string]string `json:"reason_user,omitempty"`

	// State is the challenge nonce of a verification event
	State string `json:"state,omitempty"`

	// Status is the new stream status of a stream-updated event
	Status string `json:"status,omitempty"`

	Claims map[string]interface{} `json:"-"`
}

func (e *SecurityEvent) IsVerification() bool {
	return e.Kind == KindVerification
}

func (e *SecurityEvent) IsStreamUpdated() bool {
	return e.Kind == KindStreamUpdated
}

func (e *SecurityEvent) Timestamp() time.Time {
	return time.Unix(e.EventTimestamp, 0)
}

/*
ParseEvent converts one raw events-claim entry into a typed SecurityEvent.
tokenSubject, when non-nil, back-fills the event subject if the payload has
none of its own. A payload that cannot be interpreted as a JSON object is a
hard parsing error.
*/
func ParseEvent(eventUri string, payload interface{}, tokenSubject *goSet.SubjectIdentifier) (*SecurityEvent, error) {
	rawBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("event %s payload not serializable: %w", eventUri, err)
	}

	event := SecurityEvent{
		Type: eventUri,
		Kind: Classify(eventUri),
	}
	if err := json.Unmarshal(rawBytes, &event); err != nil {
		return nil, fmt.Errorf("event %s payload invalid: %w", eventUri, err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(rawBytes, &rawMap); err != nil {
		return nil, fmt.Errorf("event %s payload is not an object: %w", eventUri, err)
	}
	if event.Subject == nil {
		// Some transmitters use sub_id at the event level
		if msg, ok := rawMap["sub_id"]; ok {
			subject := &goSet.SubjectIdentifier{}
			if err := json.Unmarshal(msg, subject); err == nil {
				event.Subject = subject
			}
		}
	}
	for key, msg := range rawMap {
		if payloadFields[key] {
			continue
		}
		var val interface{}
		_ = json.Unmarshal(msg, &val)
		if event.Claims == nil {
			event.Claims = map[string]interface{}{}
		}
		event.Claims[key] = val
	}

	if event.Subject == nil && tokenSubject != nil {
		event.Subject = tokenSubject
	}
	return &event, nil
}

/*
ParseEvents converts every entry of a token's events claim in sorted key
order. The first conversion failure aborts the whole token.
*/
func ParseEvents(token *goSet.SecurityEventToken) ([]*SecurityEvent, error) {
	ids := token.GetEventIds()
	// map iteration order is random; sort for deterministic processing
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}

	events := make([]*SecurityEvent, 0, len(ids))
	for _, uri := range ids {
		event, err := ParseEvent(uri, token.Events[uri], token.SubjectId)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// Payload returns the wire form of the event for embedding in a SET events claim.
func (e *SecurityEvent) Payload() map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range e.Claims {
		out[k] = v
	}
	if e.Subject != nil {
		out["subject"] = e.Subject
	}
	if e.EventTimestamp != 0 {
		out["event_timestamp"] = e.EventTimestamp
	}
	if e.InitiatingEntity != "" {
		out["initiating_entity"] = e.InitiatingEntity
	}
	if len(e.ReasonAdmin) > 0 {
		out["reason_admin"] = e.ReasonAdmin
	}
	if len(e.ReasonUser) > 0 {
		out["reason_user"] = e.ReasonUser
	}
	if e.State != "" {
		out["state"] = e.State
	}
	if e.Status != "" {
		out["status"] = e.Status
	}
	return out
}

/*
CreateVerificationEvent synthesizes the verification SET for one stream. The
token subject is the opaque stream id and the event payload carries the
challenge state supplied by the receiver.
*/
func CreateVerificationEvent(streamId string, state string, issuer string, audience []string) goSet.SecurityEventToken {
	subject := &goSet.EventSubject{
		SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier(streamId),
	}
	set := goSet.CreateSet(subject, issuer, audience)
	payload := map[string]interface{}{}
	if state != "" {
		payload["state"] = state
	}
	set.AddEventPayload(model.EventVerification, payload)
	return set
}

// CreateStreamUpdatedEvent announces a stream status change to the receiver.
func CreateStreamUpdatedEvent(streamId string, status string, reason string, issuer string, audience []string) goSet.SecurityEventToken {
	subject := &goSet.EventSubject{
		SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier(streamId),
	}
	set := goSet.CreateSet(subject, issuer, audience)
	payload := map[string]interface{}{
		"status": status,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	set.AddEventPayload(model.EventStreamUpdated, payload)
	return set
}
