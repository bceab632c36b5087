package mock_provider

import (
	"testing"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"github.com/stretchr/testify/assert"
)

func TestMockProviderOpen(t *testing.T) {
	provider, err := Open("mockdb://localhost:27017/", "test_db")
	assert.NoError(t, err)
	assert.NotNil(t, provider)
	assert.Equal(t, "test_db", provider.Name())

	err = provider.Close()
	assert.NoError(t, err)
}

func TestMockProviderRejectNonMockURL(t *testing.T) {
	_, err := Open("mongodb://localhost:27017/", "test_db")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mock provider only supports 'mockdb:' URL prefix")
}

func TestMockProviderSharedStorage(t *testing.T) {
	p1, err := Open("mockdb://shared-test/", "db_one")
	assert.NoError(t, err)
	_, err = p1.CreateStream(model.StreamConfiguration{Aud: []string{"test.example.com"}}, "proj")
	assert.NoError(t, err)

	p2, err := Open("mockdb://shared-test/", "db_two")
	assert.NoError(t, err)
	assert.Equal(t, "db_two", p2.Name())
	assert.Len(t, p2.ListStreams(), 1, "storage should be shared per URL")
}

func TestMockProviderBasicOperations(t *testing.T) {
	provider, err := Open("mockdb://basic/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	err = provider.ResetDb(true)
	assert.NoError(t, err)

	err = provider.Check()
	assert.NoError(t, err)

	streams := provider.ListStreams()
	assert.Empty(t, streams)

	authIssuer := provider.GetAuthIssuer()
	assert.NotNil(t, authIssuer)
	assert.NotNil(t, authIssuer.PrivateKey)

	jwks := provider.GetPublicTransmitterJWKS("DEFAULT")
	assert.NotNil(t, jwks)

	key, err := provider.GetIssuerPrivateKey("DEFAULT")
	assert.NoError(t, err)
	assert.NotNil(t, key)
}

func TestMockProviderStreamLifecycle(t *testing.T) {
	provider, err := Open("mockdb://streams/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")
	assert.NoError(t, err)
	assert.NotEmpty(t, config.Id)
	assert.Equal(t, "DEFAULT", config.Iss)
	assert.Equal(t, model.GetSupportedEvents(), config.EventsDelivered)
	assert.Equal(t, model.DeliveryPoll, config.Delivery.GetMethod())
	assert.Contains(t, config.Delivery.PollDeliveryMethod.AuthorizationHeader, "Bearer ")

	state, err := provider.GetStreamState(config.Id)
	assert.NoError(t, err)
	assert.Equal(t, model.StreamStatusEnabled, state.Status)
	assert.True(t, state.IsEnabled())

	updated, err := provider.UpdateStream(config.Id, "proj1", model.StreamConfiguration{
		EventsRequested: []string{"*session*"},
	})
	assert.NoError(t, err)
	assert.Contains(t, updated.EventsDelivered, model.EventCaepSessionRevoked)
	assert.NotContains(t, updated.EventsDelivered, model.EventCaepCredentialChange)

	_, err = provider.UpdateStream(config.Id, "wrongProject", model.StreamConfiguration{})
	assert.Error(t, err)

	provider.UpdateStreamStatus(config.Id, model.StreamStatusPaused, "admin request")
	status, err := provider.GetStatus(config.Id)
	assert.NoError(t, err)
	assert.Equal(t, model.StreamStatusPaused, status.Status)
	assert.Equal(t, "admin request", status.Reason)

	err = provider.DeleteStream(config.Id)
	assert.NoError(t, err)
	_, err = provider.GetStream(config.Id)
	assert.Error(t, err)
	err = provider.DeleteStream(config.Id)
	assert.Error(t, err)
}

func TestCalculateDeliveredEvents(t *testing.T) {
	supported := model.GetSupportedEvents()

	assert.Equal(t, supported, CalculateDeliveredEvents([]string{"*"}, supported))
	assert.Equal(t, supported, CalculateDeliveredEvents(nil, supported), "empty request delivers all supported events")

	delivered := CalculateDeliveredEvents([]string{"*credential-change"}, supported)
	assert.Equal(t, []string{model.EventCaepCredentialChange}, delivered)

	delivered = CalculateDeliveredEvents([]string{model.EventRiscAccountDisabled}, supported)
	assert.Equal(t, []string{model.EventRiscAccountDisabled}, delivered)
}

func TestMockProviderEventQueue(t *testing.T) {
	provider, err := Open("mockdb://queue/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")
	assert.NoError(t, err)
	streamId := config.Id

	subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewEmailSubjectIdentifier("user@example.com")}
	set := goSet.CreateSet(&subject, "DEFAULT", []string{"receiver.example.com"})
	set.AddEventPayload(model.EventCaepSessionRevoked, map[string]interface{}{
		"event_timestamp": time.Now().Unix(),
	})

	rec := provider.AddEvent(&set, "")
	assert.NotNil(t, rec)
	assert.Equal(t, set.ID, rec.Jti)
	assert.Equal(t, []string{model.EventCaepSessionRevoked}, rec.Types)

	provider.AddEventToStream(set.ID, streamId)
	// duplicate submission is a no-op
	provider.AddEventToStream(set.ID, streamId)

	jtis, more := provider.GetEventIds(streamId, model.PollParameters{MaxEvents: 10, ReturnImmediately: true})
	assert.Len(t, jtis, 1)
	assert.False(t, more)

	// events remain pending until acknowledged
	jtis, _ = provider.GetEventIds(streamId, model.PollParameters{MaxEvents: 10, ReturnImmediately: true})
	assert.Len(t, jtis, 1)

	events := provider.GetEvents(jtis)
	assert.Len(t, events, 1)
	assert.Equal(t, set.ID, events[0].ID)

	provider.AckEvent(set.ID, streamId)
	provider.AckEvent(set.ID, streamId) // idempotent

	jtis, more = provider.GetEventIds(streamId, model.PollParameters{MaxEvents: 10, ReturnImmediately: true})
	assert.Empty(t, jtis)
	assert.False(t, more)
}

func TestMockProviderFailEvent(t *testing.T) {
	provider, err := Open("mockdb://failures/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, _ := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")

	subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier("abc123")}
	set := goSet.CreateSet(&subject, "DEFAULT", []string{"receiver.example.com"})
	set.AddEventPayload(model.EventRiscAccountDisabled, map[string]interface{}{"reason": "hijacking"})
	provider.AddEvent(&set, "")
	provider.AddEventToStream(set.ID, config.Id)

	provider.FailEvent(set.ID, config.Id, model.SetErrorType{
		Error:       "invalid_request",
		Description: "The SET could not be parsed",
	})

	jtis, _ := provider.GetEventIds(config.Id, model.PollParameters{ReturnImmediately: true})
	assert.Empty(t, jtis, "failed events are removed from delivery")

	// audit record is retained
	assert.NotNil(t, provider.GetEventRecord(set.ID))
}

func TestMockProviderMaxEvents(t *testing.T) {
	provider, err := Open("mockdb://maxevents/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, _ := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")

	for i := 0; i < 5; i++ {
		subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier("user" + string(rune('a'+i)))}
		set := goSet.CreateSet(&subject, "DEFAULT", []string{"receiver.example.com"})
		set.AddEventPayload(model.EventCaepSessionRevoked, map[string]interface{}{})
		provider.AddEvent(&set, "")
		provider.AddEventToStream(set.ID, config.Id)
	}

	jtis, more := provider.GetEventIds(config.Id, model.PollParameters{MaxEvents: 2, ReturnImmediately: true})
	assert.Len(t, jtis, 2)
	assert.True(t, more)
}

func TestMockProviderReceivers(t *testing.T) {
	provider, err := Open("mockdb://receivers/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	rec := &model.ReceiverRecord{
		Id:             "rcv-1",
		ProjectId:      "proj1",
		Alias:          "google",
		TransmitterUrl: "https://issuer.example.com",
		Method:         model.DeliveryPoll,
	}
	assert.NoError(t, provider.PutReceiver(rec))

	got, err := provider.GetReceiver("proj1", "google")
	assert.NoError(t, err)
	assert.Equal(t, "rcv-1", got.Id)

	_, err = provider.GetReceiver("proj1", "missing")
	assert.Error(t, err)

	assert.Len(t, provider.ListReceivers("proj1"), 1)
	assert.Empty(t, provider.ListReceivers("otherProj"))

	keyRec := model.ReceiverKeyRec{
		ReceiverId: "rcv-1",
		Kid:        "key1",
		Alg:        "RS256",
		PublicKey:  []byte(`{"kty":"RSA","kid":"key1","n":"00","e":"AQAB"}`),
		CreatedAt:  time.Now(),
	}
	assert.NoError(t, provider.StoreReceiverKey(keyRec))
	// same kid replaces rather than duplicates
	assert.NoError(t, provider.StoreReceiverKey(keyRec))
	assert.Len(t, provider.GetReceiverKeys("rcv-1"), 1)

	assert.NoError(t, provider.DeleteReceiverKeys("rcv-1"))
	assert.Empty(t, provider.GetReceiverKeys("rcv-1"))

	assert.NoError(t, provider.DeleteReceiver("proj1", "google"))
	assert.Error(t, provider.DeleteReceiver("proj1", "google"))
}

func TestMockProviderVerificationState(t *testing.T) {
	provider, err := Open("mockdb://verification/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	assert.Nil(t, provider.GetVerificationState("s1"))

	provider.PutVerificationState(model.VerificationState{
		StreamId:  "s1",
		State:     "challenge-1",
		CreatedAt: time.Now(),
	})
	state := provider.GetVerificationState("s1")
	assert.NotNil(t, state)
	assert.Equal(t, "challenge-1", state.State)

	// a new challenge supersedes the pending one
	provider.PutVerificationState(model.VerificationState{
		StreamId:  "s1",
		State:     "challenge-2",
		CreatedAt: time.Now(),
	})
	state = provider.GetVerificationState("s1")
	assert.Equal(t, "challenge-2", state.State)

	provider.ClearVerificationState("s1")
	assert.Nil(t, provider.GetVerificationState("s1"))

	// expired state is treated as absent
	provider.PutVerificationState(model.VerificationState{
		StreamId:  "s2",
		State:     "stale",
		CreatedAt: time.Now().Add(-model.VerificationStateTtl - time.Minute),
	})
	assert.Nil(t, provider.GetVerificationState("s2"))
}
