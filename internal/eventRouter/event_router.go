package eventRouter

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/i2-open/goSharedSignals/internal/eventRouter/buffer"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/internal/providers/dbProviders"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"github.com/prometheus/client_golang/prometheus"
)

var eventLogger = log.New(os.Stdout, "ROUTER:      ", log.Ldate|log.Ltime)

// pushTimeout is deliberately short; push delivery is fire-and-forget
const pushTimeout = 5 * time.Second

/*
EventRouter fans generated events out to every eligible stream. Push streams
get a delivery goroutine each; poll streams get an in-memory pending buffer
consumed by the poll endpoint.
*/
type EventRouter interface {
	UpdateStreamState(stream *model.StreamStateRecord)
	RemoveStream(sid string)
	HandleEvent(eventToken *goSet.SecurityEventToken, raw string) ([]string, error)
	PollStreamHandler(sid string, params model.PollParameters) (map[string]string, bool)
	AckReceived(sid string, acks []string, setErrs map[string]model.SetErrorType)
	Shutdown()
	SetEventCounter(inCounter, outCounter prometheus.Counter)
	GetPushStreamCnt() float64
	GetPollStreamCnt() float64
}

type router struct {
	mutex               sync.RWMutex
	pushStreams         map[string]*model.StreamStateRecord
	pollStreams         map[string]*model.StreamStateRecord
	issuerKeys          map[string]*rsa.PrivateKey
	pollBuffers         map[string]*buffer.EventPollBuffer
	pushBuffers         map[string]*buffer.EventPushBuffer
	provider            dbProviders.DbProviderInterface
	eventsIn, eventsOut prometheus.Counter
}

func NewRouter(provider dbProviders.DbProviderInterface) EventRouter {
	r := router{
		provider:    provider,
		pushStreams: map[string]*model.StreamStateRecord{},
		pollStreams: map[string]*model.StreamStateRecord{},
		pushBuffers: map[string]*buffer.EventPushBuffer{},
		pollBuffers: map[string]*buffer.EventPollBuffer{},
		issuerKeys:  map[string]*rsa.PrivateKey{},
	}

	states := provider.GetStateMap()
	for _, state := range states {
		stateCopy := state
		r.UpdateStreamState(&stateCopy)
	}
	return &r
}

func (r *router) GetPushStreamCnt() float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return float64(len(r.pushStreams))
}

func (r *router) GetPollStreamCnt() float64 {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return float64(len(r.pollStreams))
}

func (r *router) incrementEventsOut() {
	// The counter is wired by the server after router startup and may briefly
	// be nil during initialization.
	if r.eventsOut == nil {
		return
	}
	r.eventsOut.Inc()
}

func (r *router) incrementEventsIn() {
	if r.eventsIn == nil {
		return
	}
	r.eventsIn.Inc()
}

func (r *router) SetEventCounter(inCounter, outCounter prometheus.Counter) {
	r.eventsIn = inCounter
	r.eventsOut = outCounter
}

func (r *router) issuerKey(issuer string) *rsa.PrivateKey {
	r.mutex.RLock()
	key, ok := r.issuerKeys[issuer]
	r.mutex.RUnlock()
	if ok {
		return key
	}

	key, err := r.provider.GetIssuerPrivateKey(issuer)
	if err != nil {
		eventLogger.Printf("ERROR: Unable to locate key for issuer %s", issuer)
		return nil
	}
	r.mutex.Lock()
	r.issuerKeys[issuer] = key
	r.mutex.Unlock()
	return key
}

/*
UpdateStreamState registers a new or changed stream with the router. Any
events still pending in the provider queue are preloaded so a restart does not
strand undelivered events.
*/
func (r *router) UpdateStreamState(stream *model.StreamStateRecord) {
	sid := stream.StreamConfiguration.Id

	jtis, _ := r.provider.GetEventIds(sid, model.PollParameters{
		ReturnImmediately: true,
	})
	r.issuerKey(stream.StreamConfiguration.Iss)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	switch stream.StreamConfiguration.Delivery.GetMethod() {
	case model.DeliveryPoll:
		r.pollStreams[sid] = stream
		if _, ok := r.pollBuffers[sid]; !ok {
			r.pollBuffers[sid] = buffer.CreateEventPollBuffer(jtis)
		}
	case model.DeliveryPush:
		if current, ok := r.pushStreams[sid]; ok {
			current.Update(stream)
		} else {
			r.pushStreams[sid] = stream
			pushBuffer := buffer.CreateEventPushBuffer(jtis)
			r.pushBuffers[sid] = pushBuffer
			go r.pushStreamHandler(stream, pushBuffer)
		}
	default:
		streamJson, _ := json.MarshalIndent(stream, "", " ")
		eventLogger.Printf("Unknown delivery method below.\n%s", streamJson)
	}
}

/*
HandleEvent stores a newly generated event and routes it to every eligible
stream. Paused and disabled streams are skipped, as are streams whose
delivered event set does not include any of the token's types. An event
matching zero streams is discarded without error. Returns the stream ids the
event was routed to.
*/
func (r *router) HandleEvent(eventToken *goSet.SecurityEventToken, raw string) ([]string, error) {
	event := r.provider.AddEvent(eventToken, raw)
	if event == nil {
		return nil, fmt.Errorf("unable to store event %s", eventToken.ID)
	}
	r.incrementEventsIn()

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var routed []string
	for sid, stream := range r.pushStreams {
		if isStreamMatch(stream, event) {
			eventLogger.Printf("Selected: Stream: %s Jti: %s, Method: PUSH, Types: %v", sid, event.Jti, event.Types)
			r.provider.AddEventToStream(event.Jti, sid)
			r.pushBuffers[sid].SubmitEvent(event.Jti)
			routed = append(routed, sid)
		}
	}

	for sid, stream := range r.pollStreams {
		if isStreamMatch(stream, event) {
			eventLogger.Printf("Selected: Stream: %s Jti: %s, Method: POLL, Types: %v", sid, event.Jti, event.Types)
			r.provider.AddEventToStream(event.Jti, sid)
			r.pollBuffers[sid].SubmitEvent(event.Jti)
			routed = append(routed, sid)
		}
	}

	if len(routed) == 0 {
		eventLogger.Printf("Jti: %s matched no streams, discarded", event.Jti)
	}
	return routed, nil
}

/*
isStreamMatch applies the routing filter: the stream must be enabled and must
have asked for at least one of the token's event types. Verification events
bypass the type filter since every stream must be verifiable.
*/
func isStreamMatch(stream *model.StreamStateRecord, event *model.EventRecord) bool {
	if !stream.IsEnabled() {
		return false
	}

	for _, eventType := range event.Types {
		if goEvent.Classify(eventType) == goEvent.KindVerification {
			return true
		}
		for _, streamType := range stream.EventsDelivered {
			if strings.EqualFold(eventType, streamType) {
				return true
			}
		}
	}
	return false
}

/*
AckReceived applies a poll request's ack list and setErrs map. Acknowledged
jtis never redeliver; failed jtis leave delivery but keep their audit record.
Both operations are idempotent.
*/
func (r *router) AckReceived(sid string, acks []string, setErrs map[string]model.SetErrorType) {
	r.mutex.RLock()
	pollBuffer := r.pollBuffers[sid]
	r.mutex.RUnlock()

	for _, jti := range acks {
		r.provider.AckEvent(jti, sid)
		if pollBuffer != nil {
			pollBuffer.Ack(jti)
		}
		r.incrementEventsOut()
	}
	for jti, errInfo := range setErrs {
		eventLogger.Printf("POLL-SRV[%s]: SET error reported for %s: %s %s", sid, jti, errInfo.Error, errInfo.Description)
		r.provider.FailEvent(jti, sid, errInfo)
		if pollBuffer != nil {
			pollBuffer.Fail(jti)
		}
	}
}

/*
PollStreamHandler returns the pending events for one poll stream as signed
tokens keyed by jti. Events stay pending until acknowledged through
AckReceived on a later request.
*/
func (r *router) PollStreamHandler(sid string, params model.PollParameters) (map[string]string, bool) {
	r.mutex.RLock()
	state, ok := r.pollStreams[sid]
	pollBuffer := r.pollBuffers[sid]
	r.mutex.RUnlock()

	if !ok || pollBuffer == nil {
		eventLogger.Printf("POLL-SRV[%s]: Poll request for unknown stream", sid)
		return nil, false
	}
	if !state.IsEnabled() {
		eventLogger.Printf("POLL-SRV[%s]: Poll request but stream is not enabled", sid)
		return map[string]string{}, false
	}

	key := r.issuerKey(state.StreamConfiguration.Iss)
	if key == nil {
		eventLogger.Printf("POLL-SRV[%s]: Error no issuer key available for %s", sid, state.StreamConfiguration.Iss)
		return nil, false
	}

	jtiSlice, more := pollBuffer.GetEvents(params)
	if jtiSlice == nil || len(*jtiSlice) == 0 {
		return map[string]string{}, false
	}

	sets := make(map[string]string, len(*jtiSlice))
	tokens := r.provider.GetEvents(*jtiSlice)
	for _, token := range tokens {
		signed, err := r.signForStream(token, &state.StreamConfiguration, key)
		if err != nil {
			eventLogger.Printf("POLL-SRV[%s]: Error signing %s: %s", sid, token.ID, err.Error())
			continue
		}
		sets[token.ID] = signed
	}
	return sets, more
}

func (r *router) signForStream(token *goSet.SecurityEventToken, config *model.StreamConfiguration, key *rsa.PrivateKey) (string, error) {
	// Re-stamp issuer/audience/iat for the target stream
	signCopy := *token
	signCopy.Issuer = config.Iss
	signCopy.Audience = config.Aud
	signCopy.IssuedAt = jwt.NewNumericDate(time.Now())
	return signCopy.JWS(jwt.SigningMethodRS256, config.Iss, key)
}

/*
pushStreamHandler runs one delivery goroutine per push stream, consuming the
stream's push buffer until the buffer closes.
*/
func (r *router) pushStreamHandler(stream *model.StreamStateRecord, eventBuf *buffer.EventPushBuffer) {
	sid := stream.StreamConfiguration.Id
	eventLogger.Printf("PUSH-SRV[%s]: Starting..", sid)

	for v := range eventBuf.Out {
		jti := v.(string)
		if !stream.IsEnabled() {
			eventLogger.Printf("PUSH-SRV[%s]: Stream not enabled, holding %s", sid, jti)
			continue
		}
		r.pushEvent(jti, stream)
	}
	eventLogger.Printf("PUSH-SRV[%s]: Stopped.", sid)
}

/*
pushEvent delivers one signed token per RFC 8935. Delivery is fire-and-forget:
a transport failure or server error is logged and the event is not requeued. A
400 response indicates the receiver rejected the token; the stream is paused
with the receiver's error detail so a misconfigured endpoint does not receive
an unbounded error stream.
*/
func (r *router) pushEvent(jti string, stream *model.StreamStateRecord) {
	config := stream.StreamConfiguration
	pushConfig := config.Delivery.PushDeliveryMethod

	token := r.provider.GetEvent(jti)
	if token == nil {
		eventLogger.Printf("PUSH-SRV[%s]: Event %s not found", config.Id, jti)
		return
	}

	key := r.issuerKey(config.Iss)
	if key == nil {
		eventLogger.Printf("PUSH-SRV[%s]: Error no issuer key available for %s", config.Id, config.Iss)
		return
	}

	tokenString, err := r.signForStream(token, &config, key)
	if err != nil {
		eventLogger.Printf("PUSH-SRV[%s]: Error signing event: %s", config.Id, err.Error())
		return
	}

	client := http.Client{Timeout: pushTimeout}
	req, err := http.NewRequest(http.MethodPost, pushConfig.EndpointUrl, strings.NewReader(tokenString))
	if err != nil {
		eventLogger.Printf("PUSH-SRV[%s]: Error building request: %s", config.Id, err.Error())
		return
	}

	if pushConfig.AuthorizationHeader != "" {
		authz := pushConfig.AuthorizationHeader
		if !strings.HasPrefix(strings.ToLower(authz), "bear") {
			authz = "Bearer " + authz
		}
		req.Header.Set("Authorization", authz)
	}
	req.Header.Set("Content-Type", "application/secevent+jwt")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		eventLogger.Printf("PUSH-SRV[%s]: Error sending %s: %s", config.Id, jti, err.Error())
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		r.provider.AckEvent(jti, config.Id)
		r.incrementEventsOut()
		eventLogger.Printf("PUSH-SRV[%s]: Delivered %s", config.Id, jti)

	case resp.StatusCode == http.StatusBadRequest:
		var errorMsg model.SetDeliveryErr
		reason := "Receiver rejected event"
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil && json.Unmarshal(body, &errorMsg) == nil {
			reason = fmt.Sprintf("%s %s", errorMsg.ErrCode, errorMsg.Description)
		}
		eventLogger.Printf("PUSH-SRV[%s]: %s", config.Id, reason)
		r.provider.UpdateStreamStatus(config.Id, model.StreamStatusPaused, reason)
		stream.Status = model.StreamStatusPaused
		stream.StatusReason = reason

	default:
		eventLogger.Printf("PUSH-SRV[%s]: HTTP Error: %s, POSTING to %s", config.Id, resp.Status, pushConfig.EndpointUrl)
	}
}

func (r *router) RemoveStream(sid string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if pb, ok := r.pushBuffers[sid]; ok {
		pb.Close()
		delete(r.pushBuffers, sid)
		delete(r.pushStreams, sid)
	}
	if pb, ok := r.pollBuffers[sid]; ok {
		pb.Close()
		delete(r.pollBuffers, sid)
		delete(r.pollStreams, sid)
	}
	eventLogger.Printf("STREAM[%s] Removed from router", sid)
}

// Shutdown stops all push delivery goroutines and releases poll waiters.
// Undelivered events remain queued in the provider for the next start.
func (r *router) Shutdown() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, pushBuffer := range r.pushBuffers {
		pushBuffer.Close()
	}
	for _, pollBuffer := range r.pollBuffers {
		pollBuffer.Close()
	}
}
