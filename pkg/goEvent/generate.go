package goEvent

import (
	"strings"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/fatih/structs"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

/*
FakeAccount is a generated identity used to produce demonstration events. The
generator exists so tools and tests can exercise delivery paths with realistic
looking data.
*/
type FakeAccount struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
	SessionId string
	IpAddress string
}

func GenerateFakeAccount() FakeAccount {
	person := gofakeit.Person()
	return FakeAccount{
		Email:     gofakeit.Email(),
		Username:  gofakeit.Username(),
		FirstName: person.FirstName,
		LastName:  person.LastName,
		SessionId: primitive.NewObjectID().Hex(),
		IpAddress: gofakeit.IPv4Address(),
	}
}

func (a FakeAccount) Subject() *goSet.EventSubject {
	return &goSet.EventSubject{
		SubjectIdentifier: *goSet.NewEmailSubjectIdentifier(a.Email),
	}
}

type sessionRevokedClaims struct {
	EventTimestamp   int64  `structs:"event_timestamp"`
	InitiatingEntity string `structs:"initiating_entity"`
	SessionId        string `structs:"session_id"`
}

type credentialChangeClaims struct {
	EventTimestamp int64  `structs:"event_timestamp"`
	CredentialType string `structs:"credential_type"`
	ChangeType     string `structs:"change_type"`
	FriendlyName   string `structs:"friendly_name"`
}

type ipChangeClaims struct {
	EventTimestamp int64  `structs:"event_timestamp"`
	LastKnownIp    string `structs:"last_known_ip"`
	NewIp          string `structs:"new_ip"`
}

/*
ResolveEventUri expands a short event name like "session-revoked" into its full
type URI. A name matching no known event is returned unchanged so callers can
generate events with custom URIs.
*/
func ResolveEventUri(name string) string {
	if strings.Contains(name, ":") || strings.Contains(name, "/") {
		return name
	}
	for _, uri := range model.GetSupportedEvents() {
		if strings.HasSuffix(uri, "/"+name) {
			return uri
		}
	}
	return name
}

/*
GenerateEvent builds an unsigned SET of the requested type for a fake account.
Known CAEP and RISC types get a type-appropriate payload; anything else gets a
minimal generic payload.
*/
func GenerateEvent(eventUri string, issuer string, audience []string) (goSet.SecurityEventToken, FakeAccount) {
	account := GenerateFakeAccount()
	now := time.Now().Unix()

	set := goSet.CreateSet(account.Subject(), issuer, audience)
	set.TransactionId = primitive.NewObjectID().Hex()

	switch eventUri {
	case model.EventCaepSessionRevoked, model.EventCaepSessionEstablished:
		set.AddEventPayload(eventUri, structs.Map(sessionRevokedClaims{
			EventTimestamp:   now,
			InitiatingEntity: "admin",
			SessionId:        account.SessionId,
		}))

	case model.EventCaepSessionPresented:
		set.AddEventPayload(eventUri, structs.Map(ipChangeClaims{
			EventTimestamp: now,
			LastKnownIp:    gofakeit.IPv4Address(),
			NewIp:          account.IpAddress,
		}))

	case model.EventCaepCredentialChange, model.EventRiscAccountCredentialChangeRequired, model.EventRiscCredentialCompromise:
		set.AddEventPayload(eventUri, structs.Map(credentialChangeClaims{
			EventTimestamp: now,
			CredentialType: "password",
			ChangeType:     "update",
			FriendlyName:   account.Username,
		}))

	case model.EventRiscIdentifierChanged:
		set.AddEventPayload(eventUri, map[string]interface{}{
			"event_timestamp": now,
			"new-value":       gofakeit.Email(),
		})

	default:
		set.AddEventPayload(eventUri, map[string]interface{}{
			"event_timestamp": now,
		})
	}
	return set, account
}
