package model

// CAEP event types per https://openid.net/specs/openid-caep-specification-1_0.html
const (
	EventCaepSessionEstablished     = "https://schemas.openid.net/secevent/caep/event-type/session-established"
	EventCaepSessionPresented       = "https://schemas.openid.net/secevent/caep/event-type/session-presented"
	EventCaepSessionRevoked         = "https://schemas.openid.net/secevent/caep/event-type/session-revoked"
	EventCaepCredentialChange       = "https://schemas.openid.net/secevent/caep/event-type/credential-change"
	EventCaepAssuranceLevelChange   = "https://schemas.openid.net/secevent/caep/event-type/assurance-level-change"
	EventCaepDeviceComplianceChange = "https://schemas.openid.net/secevent/caep/event-type/device-compliance-change"
	EventCaepTokenClaimsChange      = "https://schemas.openid.net/secevent/caep/event-type/token-claims-change"
)

// RISC event types per https://openid.net/specs/openid-risc-profile-specification-1_0.html
const (
	EventRiscAccountCredentialChangeRequired = "https://schemas.openid.net/secevent/risc/event-type/account-credential-change-required"
	EventRiscAccountDisabled                 = "https://schemas.openid.net/secevent/risc/event-type/account-disabled"
	EventRiscAccountEnabled                  = "https://schemas.openid.net/secevent/risc/event-type/account-enabled"
	EventRiscAccountPurged                   = "https://schemas.openid.net/secevent/risc/event-type/account-purged"
	EventRiscCredentialCompromise            = "https://schemas.openid.net/secevent/risc/event-type/credential-compromise"
	EventRiscIdentifierChanged               = "https://schemas.openid.net/secevent/risc/event-type/identifier-changed"
	EventRiscIdentifierRecycled              = "https://schemas.openid.net/secevent/risc/event-type/identifier-recycled"
	EventRiscOptIn                           = "https://schemas.openid.net/secevent/risc/event-type/opt-in"
	EventRiscOptOutInitiated                 = "https://schemas.openid.net/secevent/risc/event-type/opt-out-initiated"
	EventRiscOptOutCancelled                 = "https://schemas.openid.net/secevent/risc/event-type/opt-out-cancelled"
	EventRiscOptOutEffective                 = "https://schemas.openid.net/secevent/risc/event-type/opt-out-effective"
	EventRiscRecoveryActivated               = "https://schemas.openid.net/secevent/risc/event-type/recovery-activated"
	EventRiscRecoveryInformationChanged      = "https://schemas.openid.net/secevent/risc/event-type/recovery-information-changed"
)

// SSF control-plane event types. The older "sse" forms are still emitted by
// some transmitters and are accepted as aliases.
const (
	EventVerification     = "https://schemas.openid.net/secevent/ssf/event-type/verification"
	EventStreamUpdated    = "https://schemas.openid.net/secevent/ssf/event-type/stream-updated"
	EventSseVerification  = "https://schemas.openid.net/secevent/sse/event-type/verification"
	EventSseStreamUpdated = "https://schemas.openid.net/secevent/sse/event-type/stream-updated"
)

func GetCaepEvents() []string {
	return []string{
		EventCaepSessionEstablished,
		EventCaepSessionPresented,
		EventCaepSessionRevoked,
		EventCaepCredentialChange,
		EventCaepAssuranceLevelChange,
		EventCaepDeviceComplianceChange,
		EventCaepTokenClaimsChange,
	}
}

func GetRiscEvents() []string {
	return []string{
		EventRiscAccountCredentialChangeRequired,
		EventRiscAccountDisabled,
		EventRiscAccountEnabled,
		EventRiscAccountPurged,
		EventRiscCredentialCompromise,
		EventRiscIdentifierChanged,
		EventRiscIdentifierRecycled,
		EventRiscOptIn,
		EventRiscOptOutInitiated,
		EventRiscOptOutCancelled,
		EventRiscOptOutEffective,
		EventRiscRecoveryActivated,
		EventRiscRecoveryInformationChanged,
	}
}

// GetSupportedEvents returns every event type the transmitter can deliver.
func GetSupportedEvents() []string {
	events := GetCaepEvents()
	events = append(events, GetRiscEvents()...)
	events = append(events, EventVerification, EventStreamUpdated)
	return events
}

func IsVerificationEvent(eventType string) bool {
	return eventType == EventVerification || eventType == EventSseVerification
}

func IsStreamUpdatedEvent(eventType string) bool {
	return eventType == EventStreamUpdated || eventType == EventSseStreamUpdated
}
