package eventRouter

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders/mock_provider"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"github.com/stretchr/testify/assert"
)

func newTestEvent(eventType string) goSet.SecurityEventToken {
	subject := goSet.EventSubject{SubjectIdentifier: *goSet.NewOpaqueSubjectIdentifier("sess-1")}
	set := goSet.CreateSet(&subject, "DEFAULT", []string{"receiver.example.com"})
	set.AddEventPayload(eventType, map[string]interface{}{
		"event_timestamp": time.Now().Unix(),
	})
	return set
}

func TestRouterPollDelivery(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://router-poll/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")
	assert.NoError(t, err)

	router := NewRouter(provider)
	defer router.Shutdown()
	assert.Equal(t, float64(1), router.GetPollStreamCnt())
	assert.Equal(t, float64(0), router.GetPushStreamCnt())

	token := newTestEvent(model.EventCaepSessionRevoked)
	routed, err := router.HandleEvent(&token, "")
	assert.NoError(t, err)
	assert.Equal(t, []string{config.Id}, routed)

	sets, more := router.PollStreamHandler(config.Id, model.PollParameters{MaxEvents: 5, ReturnImmediately: true})
	assert.Len(t, sets, 1)
	assert.False(t, more)
	signed, ok := sets[token.ID]
	assert.True(t, ok)

	// poll response tokens verify against the transmitter JWKS
	jwksJson := provider.GetPublicTransmitterJWKS("DEFAULT")
	assert.NotNil(t, jwksJson)
	jwks, err := goSet.GetJwksFromJson(*jwksJson)
	assert.NoError(t, err)
	parsed, err := goSet.Parse(signed, jwks)
	assert.NoError(t, err)
	assert.Equal(t, token.ID, parsed.ID)

	// unacknowledged events redeliver
	sets, _ = router.PollStreamHandler(config.Id, model.PollParameters{MaxEvents: 5, ReturnImmediately: true})
	assert.Len(t, sets, 1)

	router.AckReceived(config.Id, []string{token.ID}, nil)
	sets, _ = router.PollStreamHandler(config.Id, model.PollParameters{MaxEvents: 5, ReturnImmediately: true})
	assert.Empty(t, sets)

	// acknowledging again is a no-op
	router.AckReceived(config.Id, []string{token.ID}, nil)
}

func TestRouterNoMatchingStream(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://router-nomatch/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	_, err = provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*session-revoked"},
	}, "proj1")
	assert.NoError(t, err)

	router := NewRouter(provider)
	defer router.Shutdown()

	token := newTestEvent(model.EventRiscAccountPurged)
	routed, err := router.HandleEvent(&token, "")
	assert.NoError(t, err, "an event matching zero streams is not an error")
	assert.Empty(t, routed)
}

func TestRouterDefaultRequestedDeliversAll(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://router-default/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	// a stream created without narrowing its subscription receives everything
	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud: []string{"receiver.example.com"},
	}, "proj1")
	assert.NoError(t, err)
	assert.Equal(t, model.GetSupportedEvents(), config.EventsDelivered)

	router := NewRouter(provider)
	defer router.Shutdown()

	token := newTestEvent(model.EventCaepSessionRevoked)
	routed, err := router.HandleEvent(&token, "")
	assert.NoError(t, err)
	assert.Equal(t, []string{config.Id}, routed)
}

func TestRouterSkipsPausedStream(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://router-paused/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
	}, "proj1")
	assert.NoError(t, err)
	provider.UpdateStreamStatus(config.Id, model.StreamStatusPaused, "test")

	router := NewRouter(provider)
	defer router.Shutdown()

	// router state reflects the provider at registration time
	state, _ := provider.GetStreamState(config.Id)
	router.UpdateStreamState(state)

	token := newTestEvent(model.EventCaepSessionRevoked)
	routed, err := router.HandleEvent(&token, "")
	assert.NoError(t, err)
	assert.Empty(t, routed, "paused streams receive no events")
}

func TestRouterVerificationBypassesTypeFilter(t *testing.T) {
	provider, err := mock_provider.Open("mockdb://router-verify/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*session-revoked"},
	}, "proj1")
	assert.NoError(t, err)

	router := NewRouter(provider)
	defer router.Shutdown()

	token := goEvent.CreateVerificationEvent(config.Id, "check-42", "DEFAULT", config.Aud)
	routed, err := router.HandleEvent(&token, "")
	assert.NoError(t, err)
	assert.Equal(t, []string{config.Id}, routed, "verification events route regardless of requested types")
}

func TestRouterPushDelivery(t *testing.T) {
	var delivered atomic.Int32
	var lastContentType atomic.Value

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		lastContentType.Store(req.Header.Get("Content-Type"))
		delivered.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer receiver.Close()

	provider, err := mock_provider.Open("mockdb://router-push/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
		Delivery: &model.OneOfStreamConfigurationDelivery{
			PushDeliveryMethod: &model.PushDeliveryMethod{
				Method:      model.DeliveryPush,
				EndpointUrl: receiver.URL,
			},
		},
	}, "proj1")
	assert.NoError(t, err)

	router := NewRouter(provider)
	defer router.Shutdown()
	assert.Equal(t, float64(1), router.GetPushStreamCnt())

	token := newTestEvent(model.EventCaepSessionRevoked)
	_, err = router.HandleEvent(&token, "")
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		return delivered.Load() == 1
	}, 5*time.Second, 25*time.Millisecond)
	assert.Equal(t, "application/secevent+jwt", lastContentType.Load())

	// delivered events are acknowledged and do not redeliver
	assert.Eventually(t, func() bool {
		jtis, _ := provider.GetEventIds(config.Id, model.PollParameters{ReturnImmediately: true})
		return len(jtis) == 0
	}, 5*time.Second, 25*time.Millisecond)
}

func TestRouterPushRejectionPausesStream(t *testing.T) {
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err":"invalid_audience","description":"audience not accepted"}`))
	}))
	defer receiver.Close()

	provider, err := mock_provider.Open("mockdb://router-push-reject/", "test_db")
	assert.NoError(t, err)
	defer provider.Close()

	config, err := provider.CreateStream(model.StreamConfiguration{
		Aud:             []string{"receiver.example.com"},
		EventsRequested: []string{"*"},
		Delivery: &model.OneOfStreamConfigurationDelivery{
			PushDeliveryMethod: &model.PushDeliveryMethod{
				Method:      model.DeliveryPush,
				EndpointUrl: receiver.URL,
			},
		},
	}, "proj1")
	assert.NoError(t, err)

	router := NewRouter(provider)
	defer router.Shutdown()

	token := newTestEvent(model.EventCaepSessionRevoked)
	_, err = router.HandleEvent(&token, "")
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		status, err := provider.GetStatus(config.Id)
		return err == nil && status.Status == model.StreamStatusPaused
	}, 5*time.Second, 25*time.Millisecond)
}
