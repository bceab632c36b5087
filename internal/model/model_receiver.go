package model

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/structs"
)

// ReceiverPollConfig tunes the background poll loop for one receiver.
type ReceiverPollConfig struct {
	MaxEvents       int  `json:"maxEvents,omitempty" bson:"max_events,omitempty"`
	IntervalSecs    int  `json:"intervalSecs,omitempty" bson:"interval_secs,omitempty"`
	AckImmediately  bool `json:"ackImmediately,omitempty" bson:"ack_immediately,omitempty"`
	TimeoutSecs     int  `json:"timeoutSecs,omitempty" bson:"timeout_secs,omitempty"`
	ReturnImmediate bool `json:"returnImmediately,omitempty" bson:"return_immediately,omitempty"`
}

/*
ReceiverRecord is the receiver-held subscription record for one remote
transmitter stream. Created on subscription setup, mutated on refresh,
destroyed on unsubscribe. ConfigHash covers the whole record except
ModifiedAt and ConfigHash themselves and is used to detect out-of-band drift.
*/
type ReceiverRecord struct {
	Id          string `json:"id" bson:"_id"`
	ProjectId   string `json:"project_id,omitempty" bson:"project_id,omitempty"`
	Alias       string `json:"alias" bson:"alias"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`

	TransmitterUrl       string `json:"transmitterUrl" bson:"transmitter_url"`
	TransmitterConfigUrl string `json:"transmitterConfigUrl,omitempty" bson:"transmitter_config_url,omitempty"`
	TransmitterPollUrl   string `json:"transmitterPollUrl,omitempty" bson:"transmitter_poll_url,omitempty"`

	// TransmitterAccessToken authorizes stream management, poll and verification calls
	TransmitterAccessToken string `json:"transmitterAccessToken,omitempty" bson:"transmitter_access_token,omitempty"`

	// PushAuthorizationToken, when set, must be presented by the transmitter on push delivery
	PushAuthorizationToken string `json:"pushAuthorizationToken,omitempty" bson:"push_authorization_token,omitempty"`

	// PushEndpointUrl is this receiver's ingress URL given to the transmitter on push subscriptions
	PushEndpointUrl string `json:"pushEndpointUrl,omitempty" bson:"push_endpoint_url,omitempty"`

	// Method is DeliveryPush or DeliveryPoll
	Method string `json:"method" bson:"method"`

	// ManagedStream is true when this receiver created the remote stream and owns its lifecycle
	ManagedStream bool `json:"managedStream" bson:"managed_stream"`

	StreamId string   `json:"streamId,omitempty" bson:"stream_id,omitempty"`
	Iss      string   `json:"iss,omitempty" bson:"iss,omitempty"`
	Aud      []string `json:"aud,omitempty" bson:"aud,omitempty"`
	JwksUri  string   `json:"jwksUri,omitempty" bson:"jwks_uri,omitempty"`

	EventsRequested []string `json:"eventsRequested,omitempty" bson:"events_requested,omitempty"`
	EventsDelivered []string `json:"eventsDelivered,omitempty" bson:"events_delivered,omitempty"`

	PollConfig ReceiverPollConfig `json:"pollConfig,omitempty" bson:"poll_config,omitempty"`

	ModifiedAt time.Time `json:"modifiedAt" bson:"modified_at"`
	ConfigHash string    `json:"configHash,omitempty" bson:"config_hash,omitempty"`
}

func (r *ReceiverRecord) IsPollDelivery() bool {
	return r.Method == DeliveryPoll
}

/*
CalculateConfigHash returns a hash over the receiver configuration excluding
the ModifiedAt and ConfigHash fields. Field values are flattened to a sorted
key list so the hash is stable across field ordering.
*/
func (r *ReceiverRecord) CalculateConfigHash() string {
	fields := structs.Map(r)
	delete(fields, "ModifiedAt")
	delete(fields, "ConfigHash")

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	hasher := sha256.New()
	for _, k := range keys {
		valBytes, _ := json.Marshal(fields[k])
		fmt.Fprintf(hasher, "%s=%s;", k, valBytes)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}

/*
ReceiverKeyRec caches one public key of a remote transmitter, keyed by
(receiver id, kid). Keys are refreshed on receiver update and revoked on
unsubscribe.
*/
type ReceiverKeyRec struct {
	ReceiverId string    `json:"receiverId" bson:"receiver_id"`
	Kid        string    `json:"kid" bson:"kid"`
	Alg        string    `json:"alg,omitempty" bson:"alg,omitempty"`
	PublicKey  []byte    `json:"publicKey" bson:"public_key"` // JWK JSON
	CreatedAt  time.Time `json:"createdAt" bson:"created_at"`
}
