package receiver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/processor"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders/mock_provider"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"github.com/stretchr/testify/assert"
)

// scriptedPoller answers each poll request with the next queued response and
// records what the client sent.
type scriptedPoller struct {
	server *httptest.Server

	mu        sync.Mutex
	requests  []model.PollParameters
	responses []model.PollResponse
}

func newScriptedPoller(t *testing.T) *scriptedPoller {
	sp := &scriptedPoller{}
	sp.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params model.PollParameters
		_ = json.NewDecoder(r.Body).Decode(&params)

		sp.mu.Lock()
		sp.requests = append(sp.requests, params)
		response := model.PollResponse{Sets: map[string]string{}}
		if len(sp.responses) > 0 {
			response = sp.responses[0]
			sp.responses = sp.responses[1:]
		}
		sp.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	t.Cleanup(sp.server.Close)
	return sp
}

func (sp *scriptedPoller) queue(response model.PollResponse) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.responses = append(sp.responses, response)
}

func (sp *scriptedPoller) request(i int) model.PollParameters {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.requests[i]
}

func (sp *scriptedPoller) requestCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.requests)
}

type pollFixture struct {
	provider *mock_provider.MockDbProvider
	rcv      *model.ReceiverRecord
	poller   *scriptedPoller
	signSet  func(types ...string) (string, string)
	received []string
	mu       sync.Mutex
}

func newPollFixture(t *testing.T, dbUrl string) (*pollFixture, *PollClient) {
	provider, err := mock_provider.Open(dbUrl, "test_db")
	assert.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	signKey := provider.CreateIssuerJwkKeyPair(testIssuer, "proj1")
	jwksJson := provider.GetPublicTransmitterJWKS(testIssuer)
	ft := newFakeTransmitter(t, *jwksJson)
	poller := newScriptedPoller(t)

	mgr := NewManager(provider, nil)
	rcv, err := mgr.CreateOrUpdate(&model.ReceiverRecord{
		ProjectId:      "proj1",
		Alias:          "upstream",
		TransmitterUrl: ft.server.URL,
		ManagedStream:  true,
	})
	assert.NoError(t, err)
	rcv.TransmitterPollUrl = poller.server.URL

	fixture := &pollFixture{provider: provider, rcv: rcv, poller: poller}
	fixture.signSet = func(types ...string) (string, string) {
		subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier("sess-1")}
		set := goSet.CreateSet(&subject, testIssuer, []string{"receiver.example.com"})
		for _, eventType := range types {
			set.AddEventPayload(eventType, map[string]interface{}{
				"event_timestamp": time.Now().Unix(),
			})
		}
		signed, err := set.JWS(nil, testIssuer, signKey)
		assert.NoError(t, err)
		return set.ID, signed
	}

	proc := processor.NewProcessor(provider, processor.EventListenerFunc(func(ctx context.Context, jti string, event *goEvent.SecurityEvent) error {
		fixture.mu.Lock()
		fixture.received = append(fixture.received, jti)
		fixture.mu.Unlock()
		return nil
	}))
	return fixture, NewPollClient(provider, proc, rcv, nil)
}

func TestPollClientAcksOnNextCycle(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-acks/")

	jti1, signed1 := fixture.signSet(model.EventCaepSessionRevoked)
	jti2, signed2 := fixture.signSet(model.EventCaepTokenClaimsChange)
	fixture.poller.queue(model.PollResponse{Sets: map[string]string{jti1: signed1, jti2: signed2}})

	assert.NoError(t, pc.tick())
	assert.Empty(t, fixture.poller.request(0).Acks, "first poll carries nothing to acknowledge")
	assert.Equal(t, 2, pc.pendingCount())
	fixture.mu.Lock()
	assert.Len(t, fixture.received, 2)
	fixture.mu.Unlock()

	assert.NoError(t, pc.tick())
	assert.Equal(t, 2, fixture.poller.requestCount())
	assert.ElementsMatch(t, []string{jti1, jti2}, fixture.poller.request(1).Acks)
	assert.Equal(t, 0, pc.pendingCount(), "acks cleared once the carrying request succeeds")
}

func TestPollClientAckImmediately(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-ackimm/")
	fixture.rcv.PollConfig.AckImmediately = true

	jti, signed := fixture.signSet(model.EventCaepSessionRevoked)
	fixture.poller.queue(model.PollResponse{Sets: map[string]string{jti: signed}})

	assert.NoError(t, pc.tick())
	assert.Equal(t, 2, fixture.poller.requestCount(), "ack follow-up goes out in the same cycle")
	followUp := fixture.poller.request(1)
	assert.Equal(t, 0, followUp.MaxEvents)
	assert.True(t, followUp.IsAckOnly())
	assert.Equal(t, []string{jti}, followUp.Acks)
	assert.Equal(t, 0, pc.pendingCount())
}

func TestPollClientTransportFailureKeepsAcks(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-fail/")

	jti, signed := fixture.signSet(model.EventCaepSessionRevoked)
	fixture.poller.queue(model.PollResponse{Sets: map[string]string{jti: signed}})
	assert.NoError(t, pc.tick())
	assert.Equal(t, 1, pc.pendingCount())

	fixture.rcv.TransmitterPollUrl = "http://127.0.0.1:1/poll"
	assert.Error(t, pc.tick())
	assert.Equal(t, 1, pc.pendingCount(), "a failed request never loses an ack")
}

func TestPollClientVerificationMismatch(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-verify/")

	fixture.provider.PutVerificationState(model.VerificationState{
		StreamId:  fixture.rcv.StreamId,
		State:     "expected-state",
		CreatedAt: time.Now(),
	})

	set := goEvent.CreateVerificationEvent(fixture.rcv.StreamId, "wrong-state", testIssuer, []string{"receiver.example.com"})
	signKey, err := fixture.provider.GetIssuerPrivateKey(testIssuer)
	assert.NoError(t, err)
	signed, err := set.JWS(nil, testIssuer, signKey)
	assert.NoError(t, err)

	fixture.poller.queue(model.PollResponse{Sets: map[string]string{set.ID: signed}})
	assert.NoError(t, pc.tick())
	assert.Equal(t, 1, pc.pendingCount())

	assert.NoError(t, pc.tick())
	setErrs := fixture.poller.request(1).SetErrs
	assert.Len(t, setErrs, 1)
	assert.Equal(t, model.ErrorInvalidState, setErrs[set.ID].Error)
	assert.Equal(t, 0, pc.pendingCount())

	// the pending challenge survives the mismatch
	assert.NotNil(t, fixture.provider.GetVerificationState(fixture.rcv.StreamId))
}

func TestPollClientRejectsForeignIssuer(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-issuer/")

	// sign with the cached key but claim another issuer
	signKey, err := fixture.provider.GetIssuerPrivateKey(testIssuer)
	assert.NoError(t, err)
	subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier("sess-1")}
	set := goSet.CreateSet(&subject, "https://rogue.example.com", []string{"receiver.example.com"})
	set.AddEventPayload(model.EventCaepSessionRevoked, map[string]interface{}{})
	signed, err := set.JWS(nil, testIssuer, signKey)
	assert.NoError(t, err)

	fixture.poller.queue(model.PollResponse{Sets: map[string]string{set.ID: signed}})
	assert.NoError(t, pc.tick())

	assert.NoError(t, pc.tick())
	setErrs := fixture.poller.request(1).SetErrs
	assert.Equal(t, model.ErrorInvalidIssuer, setErrs[set.ID].Error)
	fixture.mu.Lock()
	assert.Empty(t, fixture.received, "an unverified token never reaches the listener")
	fixture.mu.Unlock()
}

func TestPollClientStartAndClose(t *testing.T) {
	fixture, pc := newPollFixture(t, "mockdb://poll-lifecycle/")
	fixture.rcv.PollConfig.IntervalSecs = 1

	pc.Start()
	assert.True(t, pc.IsActive())
	pc.Close()
	assert.False(t, pc.IsActive())
}
