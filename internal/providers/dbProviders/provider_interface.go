package dbProviders

import (
	"crypto/rsa"
	"encoding/json"

	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/MicahParks/keyfunc"
)

/*
DbProviderInterface abstracts the durable store backing the protocol engine:
transmitter streams and their poll queues, receiver subscription records with
cached transmitter keys, verification state, and signing keys. Select an
implementation with Open (mongodb: or mockdb: URL).
*/
type DbProviderInterface interface {
	Name() string
	Check() error
	Close() error

	// Signing and validation keys
	GetPublicTransmitterJWKS(issuer string) *json.RawMessage
	GetIssuerPrivateKey(issuer string) (*rsa.PrivateKey, error)
	CreateIssuerJwkKeyPair(issuer string, projectId string) *rsa.PrivateKey
	GetAuthValidatorPubKey() *keyfunc.JWKS
	GetAuthIssuer() *authUtil.AuthIssuer

	// Client registration
	RegisterClient(client model.SsfClient, projectId string) *model.RegisterResponse

	// Transmitter streams
	CreateStream(request model.StreamConfiguration, projectId string) (model.StreamConfiguration, error)
	UpdateStream(streamId string, projectId string, configReq model.StreamConfiguration) (*model.StreamConfiguration, error)
	DeleteStream(streamId string) error
	GetStream(id string) (*model.StreamConfiguration, error)
	GetStreamState(id string) (*model.StreamStateRecord, error)
	UpdateStreamStatus(streamId string, status string, reason string)
	GetStatus(streamId string) (*model.StreamStatus, error)
	ListStreams() []model.StreamConfiguration
	GetStateMap() map[string]model.StreamStateRecord

	// Transmitter event store and per-stream poll queues
	AddEvent(event *goSet.SecurityEventToken, raw string) *model.EventRecord
	AddEventToStream(jti string, streamId string)
	GetEventIds(streamId string, params model.PollParameters) ([]string, bool)
	GetEvent(jti string) *goSet.SecurityEventToken
	GetEvents(jtis []string) []*goSet.SecurityEventToken
	GetEventRecord(jti string) *model.EventRecord
	AckEvent(jti string, streamId string)
	FailEvent(jti string, streamId string, errInfo model.SetErrorType)

	// Receiver subscription records
	PutReceiver(rec *model.ReceiverRecord) error
	GetReceiver(projectId string, alias string) (*model.ReceiverRecord, error)
	ListReceivers(projectId string) []model.ReceiverRecord
	DeleteReceiver(projectId string, alias string) error

	// Cached transmitter keys, keyed (receiverId, kid)
	StoreReceiverKey(rec model.ReceiverKeyRec) error
	GetReceiverKeys(receiverId string) []model.ReceiverKeyRec
	GetReceiverJwks(receiverId string) *keyfunc.JWKS
	DeleteReceiverKeys(receiverId string) error

	// Verification challenge state, at most one pending per stream
	PutVerificationState(state model.VerificationState)
	GetVerificationState(streamId string) *model.VerificationState
	ClearVerificationState(streamId string)
}
