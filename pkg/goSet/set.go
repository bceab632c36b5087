package goSet

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/segmentio/ksuid"
)

// SetContentType is the JWT "typ" header value required for SETs per RFC 8417.
const SetContentType = "secevent+jwt"

// Subject identifier formats per draft-ietf-secevent-subject-identifiers.
const (
	FormatEmail   = "email"
	FormatOpaque  = "opaque"
	FormatIssSub  = "iss_sub"
	FormatPhone   = "phone_number"
	FormatUri     = "uri"
	FormatComplex = "complex"
)

type UsernameIdentifier struct {
	Username string `json:"username,omitempty"`
}

type EmailIdentifier struct {
	Email string `json:"email,omitempty"`
}

type IssuerSubjectIdentifier struct {
	Issuer string `json:"iss,omitempty"`
	Sub    string `json:"sub,omitempty"`
}

type OpaqueIdentifier struct {
	Id string `json:"id,omitempty"`
}

type PhoneNumberIdentifier struct {
	PhoneNumber string `json:"phone_number,omitempty"`
}

type UniformResourceIdentifier struct {
	Uri string `json:"uri,omitempty"`
}

type SubIdentifier struct {
	// This is here to allow top-level sub claim
	Sub string `json:"sub,omitempty"`
}

type EventSubject struct {
	SubIdentifier     // Supports top-level sub claim
	SubjectIdentifier // Used for draft-ietf-secevent-subject-identifier format
}

/*
SubjectIdentifier is the polymorphic subject claim used both at the token level
("sub_id") and inside event payloads. Format selects which of the embedded
identifier fields are meaningful. A "complex" subject carries named member
subjects in Identifiers. Members of formats not otherwise modelled round-trip
through Attributes so unknown subject kinds are never lost.
*/
type SubjectIdentifier struct {
	Format string `json:"format,omitempty"`
	UsernameIdentifier
	EmailIdentifier
	IssuerSubjectIdentifier
	OpaqueIdentifier
	PhoneNumberIdentifier
	UniformResourceIdentifier

	Identifiers map[string]*SubjectIdentifier `json:"-"`
	Attributes  map[string]interface{}        `json:"-"`
}

func NewEmailSubjectIdentifier(email string) *SubjectIdentifier {
	return &SubjectIdentifier{
		Format:          FormatEmail,
		EmailIdentifier: EmailIdentifier{Email: email},
	}
}

func NewOpaqueSubjectIdentifier(id string) *SubjectIdentifier {
	return &SubjectIdentifier{
		Format:           FormatOpaque,
		OpaqueIdentifier: OpaqueIdentifier{Id: id},
	}
}

func NewIssSubSubjectIdentifier(issuer string, sub string) *SubjectIdentifier {
	return &SubjectIdentifier{
		Format:                  FormatIssSub,
		IssuerSubjectIdentifier: IssuerSubjectIdentifier{Issuer: issuer, Sub: sub},
	}
}

func NewComplexSubjectIdentifier(members map[string]*SubjectIdentifier) *SubjectIdentifier {
	return &SubjectIdentifier{
		Format:      FormatComplex,
		Identifiers: members,
	}
}

func (sid *SubjectIdentifier) AddUsername(username string) *SubjectIdentifier {
	sid.Username = username
	return sid
}

func (sid *SubjectIdentifier) AddEmail(email string) *SubjectIdentifier {
	sid.Email = email
	return sid
}

// IsOpaque reports whether the subject carries an opaque identifier value.
func (sid *SubjectIdentifier) IsOpaque() bool {
	return sid != nil && sid.Format == FormatOpaque && sid.Id != ""
}

// typedMembers are the JSON keys owned by the typed identifier fields above.
var typedMembers = map[string]bool{
	"format": true, "username": true, "email": true, "iss": true, "sub": true,
	"id": true, "phone_number": true, "uri": true,
}

func (sid SubjectIdentifier) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	for k, v := range sid.Attributes {
		out[k] = v
	}
	if sid.Format != "" {
		out["format"] = sid.Format
	}
	if sid.Username != "" {
		out["username"] = sid.Username
	}
	if sid.Email != "" {
		out["email"] = sid.Email
	}
	if sid.Issuer != "" {
		out["iss"] = sid.Issuer
	}
	if sid.Sub != "" {
		out["sub"] = sid.Sub
	}
	if sid.Id != "" {
		out["id"] = sid.Id
	}
	if sid.PhoneNumber != "" {
		out["phone_number"] = sid.PhoneNumber
	}
	if sid.Uri != "" {
		out["uri"] = sid.Uri
	}
	for name, member := range sid.Identifiers {
		out[name] = member
	}
	return json.Marshal(out)
}

func (sid *SubjectIdentifier) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	getString := func(key string) string {
		var s string
		if msg, ok := raw[key]; ok {
			_ = json.Unmarshal(msg, &s)
		}
		return s
	}

	sid.Format = getString("format")
	sid.Username = getString("username")
	sid.Email = getString("email")
	sid.Issuer = getString("iss")
	sid.Sub = getString("sub")
	sid.Id = getString("id")
	sid.PhoneNumber = getString("phone_number")
	sid.Uri = getString("uri")

	for key, msg := range raw {
		if typedMembers[key] {
			continue
		}
		if sid.Format == FormatComplex {
			member := &SubjectIdentifier{}
			if err := json.Unmarshal(msg, member); err == nil {
				if sid.Identifiers == nil {
					sid.Identifiers = map[string]*SubjectIdentifier{}
				}
				sid.Identifiers[key] = member
				continue
			}
		}
		var val interface{}
		_ = json.Unmarshal(msg, &val)
		if sid.Attributes == nil {
			sid.Attributes = map[string]interface{}{}
		}
		sid.Attributes[key] = val
	}
	return nil
}

/*
SecurityEventToken is a SET per RFC 8417. Events maps event type URIs to their
raw payload claims. Map key order carries no meaning; callers needing a stable
ordering sort the keys themselves.
*/
type SecurityEventToken struct {
	jwt.RegisteredClaims

	TimeOfEvent   *jwt.NumericDate   `json:"toe,omitempty"`
	TransactionId string             `json:"txn,omitempty"`
	SubjectId     *SubjectIdentifier `json:"sub_id,omitempty"`

	Events map[string]interface{} `json:"events"`
}

/*
CreateSet is used to create a SecurityEventToken object that can be used to generate a JWT or JWS token. 'subject'
allows the specification of a "sub" or "sub_id" top-level JWT claim. If 'subject' is nil, no top-level claim is created
which may be useful for OpenID RISC and CAEP events.
*/
func CreateSet(subject *EventSubject, issuer string, audience []string) SecurityEventToken {
	jti := GenerateJti()
	if subject == nil {
		// Assume subject is part of event payload
		return SecurityEventToken{
			Events: make(map[string]interface{}),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:       jti,
				IssuedAt: jwt.NewNumericDate(time.Now()),
				Issuer:   issuer,
				Audience: audience,
			},
		}
	}
	if subject.Sub != "" {
		// Subject is to be specified using the "sub" claim
		return SecurityEventToken{
			Events: make(map[string]interface{}),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:       jti,
				Subject:  subject.Sub,
				IssuedAt: jwt.NewNumericDate(time.Now()),
				Issuer:   issuer,
				Audience: audience,
			},
		}
	}

	// Subject is expressed using the sub_id claim
	return SecurityEventToken{
		Events: make(map[string]interface{}),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jti,
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   issuer,
			Audience: audience,
		},
		SubjectId: &subject.SubjectIdentifier,
	}
}

func (set *SecurityEventToken) String() string {
	jsonByte, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		log.Printf("Error encoding token: %s", err.Error())
	}
	return string(jsonByte)
}

func (set *SecurityEventToken) JsonBytes() []byte {
	var jsonBuf bytes.Buffer
	err := json.NewEncoder(&jsonBuf).Encode(set)
	if err != nil {
		log.Printf("Error encoding token: %s", err.Error())
	}
	return jsonBuf.Bytes()
}

func (set *SecurityEventToken) AddEventPayload(eventUri string, eventClaims map[string]interface{}) {
	set.Events[eventUri] = eventClaims
}

func (set *SecurityEventToken) GetEventIds() []string {
	if len(set.Events) == 0 {
		return []string{}
	}

	var keys []string
	for key := range set.Events {
		keys = append(keys, key)
	}
	return keys
}

// JWT returns the unsigned token form. Used for diagnostics and tests.
func (set *SecurityEventToken) JWT() *jwt.Token {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, set)
	token.Header["typ"] = SetContentType
	return token
}

/*
JWS signs the token and returns the compact serialized form. The kid header is
set so receivers can select the matching verification key from the issuer JWKS.
*/
func (set *SecurityEventToken) JWS(signingMethod jwt.SigningMethod, kid string, key *rsa.PrivateKey) (string, error) {
	if signingMethod == nil {
		signingMethod = jwt.SigningMethodRS256
	}
	token := jwt.NewWithClaims(signingMethod, set)
	token.Header["typ"] = SetContentType
	token.Header["kid"] = kid
	return token.SignedString(key)
}

/*
Parse verifies and decodes a compact SET against the issuer's public keys. Key
selection by kid and algorithm is delegated to keyfunc. Parse fails closed: any
signature, key selection, or structural problem returns a nil token and an
error.
*/
func Parse(tokenString string, issuerPublicJwks *keyfunc.JWKS) (*SecurityEventToken, error) {
	if issuerPublicJwks == nil {
		return nil, errors.New("no verification keys available for issuer")
	}
	token, err := jwt.ParseWithClaims(tokenString, &SecurityEventToken{}, issuerPublicJwks.Keyfunc)
	if err != nil {
		return nil, err
	}
	if token.Header["typ"] != SetContentType {
		return nil, errors.New("token type is not `secevent+jwt`")
	}

	if claims, ok := token.Claims.(*SecurityEventToken); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("token claims could not be validated")
}

func GenerateJti() string {
	return ksuid.New().String()
}

func (set *SecurityEventToken) IsBefore(jtiVal []byte) (bool, error) {
	return set.ID < string(jtiVal), nil
}
