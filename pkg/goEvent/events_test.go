package goEvent

import (
	"testing"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, KindCaep, Classify(model.EventCaepSessionRevoked))
	assert.Equal(t, KindRisc, Classify(model.EventRiscAccountDisabled))
	assert.Equal(t, KindVerification, Classify(model.EventVerification))
	assert.Equal(t, KindVerification, Classify(model.EventSseVerification))
	assert.Equal(t, KindStreamUpdated, Classify(model.EventStreamUpdated))
	assert.Equal(t, KindGeneric, Classify("https://example.com/event-type/not-registered"))
}

func TestParseEvent(t *testing.T) {
	payload := map[string]interface{}{
		"subject": map[string]interface{}{
			"format": "opaque",
			"id":     "sess-1",
		},
		"event_timestamp":   int64(1700000000),
		"initiating_entity": "policy",
		"reason_admin":      map[string]interface{}{"en": "Landspeed violation"},
	}

	event, err := ParseEvent(model.EventCaepSessionRevoked, payload, nil)
	assert.NoError(t, err)
	assert.Equal(t, KindCaep, event.Kind)
	assert.Equal(t, model.EventCaepSessionRevoked, event.Type)
	assert.Equal(t, "sess-1", event.Subject.Id)
	assert.Equal(t, int64(1700000000), event.EventTimestamp)
	assert.Equal(t, "Landspeed violation", event.ReasonAdmin["en"])
}

func TestParseEventSubjectBackfill(t *testing.T) {
	tokenSubject := goSet.NewEmailSubjectIdentifier("alice@example.com")

	payload := map[string]interface{}{"event_timestamp": int64(1700000000)}
	event, err := ParseEvent(model.EventRiscAccountDisabled, payload, tokenSubject)
	assert.NoError(t, err)
	assert.NotNil(t, event.Subject, "token subject backfilled")
	assert.Equal(t, "alice@example.com", event.Subject.Email)

	// An event-level subject wins over the token subject
	payload["subject"] = map[string]interface{}{"format": "opaque", "id": "acct-9"}
	event, err = ParseEvent(model.EventRiscAccountDisabled, payload, tokenSubject)
	assert.NoError(t, err)
	assert.Equal(t, "acct-9", event.Subject.Id)
}

/*
TestUnknownEventType checks that a token carrying one known and one
unregistered event type yields a Generic instance for the latter and parses
both.
*/
func TestUnknownEventType(t *testing.T) {
	set := goSet.CreateSet(nil, "https://issuer.example.com", []string{"receiver"})
	set.AddEventPayload(model.EventCaepSessionRevoked, map[string]interface{}{
		"subject": map[string]interface{}{"format": "opaque", "id": "sess-1"},
	})
	set.AddEventPayload("https://example.com/event-type/custom", map[string]interface{}{
		"custom_claim": "custom_value",
	})

	events, err := ParseEvents(&set)
	assert.NoError(t, err)
	assert.Len(t, events, 2)

	var generic *SecurityEvent
	for _, event := range events {
		if event.Kind == KindGeneric {
			generic = event
		}
	}
	assert.NotNil(t, generic, "unregistered type classified generic")
	assert.Equal(t, "custom_value", generic.Claims["custom_claim"])
}

func TestParseEventBadPayload(t *testing.T) {
	_, err := ParseEvent(model.EventCaepSessionRevoked, "not-an-object", nil)
	assert.Error(t, err, "non-object payload is a parsing error")
}

func TestPayloadRoundTrip(t *testing.T) {
	payload := map[string]interface{}{
		"subject":         map[string]interface{}{"format": "opaque", "id": "dev-5"},
		"event_timestamp": int64(1700000000),
		"previous_status": "compliant",
		"current_status":  "not-compliant",
	}
	event, err := ParseEvent(model.EventCaepDeviceComplianceChange, payload, nil)
	assert.NoError(t, err)

	wire := event.Payload()
	assert.Equal(t, "compliant", wire["previous_status"])
	assert.Equal(t, "not-compliant", wire["current_status"])

	again, err := ParseEvent(model.EventCaepDeviceComplianceChange, wire, nil)
	assert.NoError(t, err)
	assert.Equal(t, event.Subject.Id, again.Subject.Id)
	assert.Equal(t, event.EventTimestamp, again.EventTimestamp)
	assert.Equal(t, event.Claims, again.Claims)
}

func TestCreateVerificationEvent(t *testing.T) {
	set := CreateVerificationEvent("stream-1", "abc123", "https://issuer.example.com", []string{"receiver"})
	assert.True(t, set.SubjectId.IsOpaque())
	assert.Equal(t, "stream-1", set.SubjectId.Id)

	events, err := ParseEvents(&set)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.True(t, events[0].IsVerification())
	assert.Equal(t, "abc123", events[0].State)
}
