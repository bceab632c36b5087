package test

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"log"
	"testing"

	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
)

var testSet *goSet.SecurityEventToken

/*
TestCreateSet creates a SET using the 3 variations of subjects (sub, sub_id, and none).
*/
func TestCreateSet(t *testing.T) {
	log.Println("Testing CreateSet with 'sub' subject...")
	subject := &goSet.EventSubject{
		SubIdentifier: goSet.SubIdentifier{Sub: "1234"},
	}

	set := goSet.CreateSet(subject, "TestIssuer", []string{"TestAudience"})

	payload_claims := map[string]interface{}{
		"aclaim": "avalue",
	}
	set.AddEventPayload("uri:testevent", payload_claims)

	jsonString := set.String()

	assert.NotContainsf(t, jsonString, "sub_id", "sub_id detected")
	assert.Contains(t, jsonString, "\"sub\"", "sub claim detected")
	log.Println("\n", jsonString)

	log.Println("Testing CreateSet with 'sub_id' subject...")
	subject = &goSet.EventSubject{
		SubjectIdentifier: *goSet.NewEmailSubjectIdentifier("phil.hunt@hexa.org").AddUsername("huntp"),
	}
	set = goSet.CreateSet(subject, "TestIssuer", []string{"TestAudience"})
	set.AddEventPayload("uri:testevent", payload_claims)
	jsonString = set.String()

	jsonBytes := set.JsonBytes()
	var tkn goSet.SecurityEventToken
	err := json.Unmarshal(jsonBytes, &tkn)
	assert.NoError(t, err, "check token bytes parsed")
	compString, err := json.MarshalIndent(tkn, "", "  ")
	assert.NoError(t, err, "Marshalling token")

	assert.Contains(t, jsonString, "sub_id", "sub_id detected")
	assert.NotContains(t, jsonString, "\"sub\"", "sub claim detected")
	assert.Equal(t, jsonString, string(compString), "check that JsonBytes is the same")
	log.Println("\n", jsonString)

	// No subject
	log.Println("Testing CreateSet with 'nil' subject...")
	set = goSet.CreateSet(nil, "TestIssuer", []string{"TestAudience"})
	set.AddEventPayload("uri:testevent", payload_claims)
	jsonString = set.String()

	assert.NotContains(t, jsonString, "sub_id", "sub_id detected")
	assert.NotContains(t, jsonString, "\"sub\"", "sub claim detected")
	log.Println("\n", jsonString)

	token := set.JWT()
	jsonByte, _ := json.MarshalIndent(token.Header, "", "  ")
	headerString := string(jsonByte)
	assert.Contains(t, headerString, "\"secevent+jwt\"", "Header contains correct type")
	assert.Equal(t, jwt.SigningMethodNone.Alg(), token.Header["alg"])

	subject = &goSet.EventSubject{
		SubjectIdentifier: *goSet.NewIssSubSubjectIdentifier("https://idp.example.com", "user-77"),
	}
	signedSet := goSet.CreateSet(subject, "TestIssuer", []string{"TestAudience"})
	signedSet.AddEventPayload("uri:testevent", payload_claims)
	testSet = &signedSet
}

/*
TestComplexSubject checks that a complex subject with named members and an
unknown format with free-form members both survive a JSON round trip.
*/
func TestComplexSubject(t *testing.T) {
	subject := goSet.NewComplexSubjectIdentifier(map[string]*goSet.SubjectIdentifier{
		"user":    goSet.NewEmailSubjectIdentifier("alice@example.com"),
		"session": goSet.NewOpaqueSubjectIdentifier("sess-8899"),
	})

	rawBytes, err := json.Marshal(subject)
	assert.NoError(t, err, "complex subject marshals")

	var parsed goSet.SubjectIdentifier
	err = json.Unmarshal(rawBytes, &parsed)
	assert.NoError(t, err, "complex subject parses")
	assert.Equal(t, goSet.FormatComplex, parsed.Format)
	assert.Equal(t, "alice@example.com", parsed.Identifiers["user"].Email)
	assert.Equal(t, "sess-8899", parsed.Identifiers["session"].Id)

	// Unknown format with unmodelled members
	rawJson := []byte(`{"format":"jwt_id","jti":"tok-123","iss":"https://idp.example.com"}`)
	var generic goSet.SubjectIdentifier
	err = json.Unmarshal(rawJson, &generic)
	assert.NoError(t, err, "unknown format parses")
	assert.Equal(t, "jwt_id", generic.Format)
	assert.Equal(t, "tok-123", generic.Attributes["jti"])
	assert.Equal(t, "https://idp.example.com", generic.Issuer)

	reBytes, err := json.Marshal(&generic)
	assert.NoError(t, err)
	assert.Contains(t, string(reBytes), "\"jti\":\"tok-123\"", "unknown member preserved")
}

func TestSetJws(t *testing.T) {
	log.Println("Testing SET JWT Signature and Validation...")
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	publicKey := privateKey.PublicKey

	givenKey := keyfunc.NewGivenRSACustomWithOptions(&publicKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})

	jwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"testkey": givenKey,
	})

	signString, err := testSet.JWS(jwt.SigningMethodRS256, "testkey", privateKey)
	assert.Nil(t, err, "Signing is error free")
	log.Println("Signed value")
	log.Println(signString)

	newSet, err := goSet.Parse(signString, jwks)
	assert.Nil(t, err, "Assert that token was valid and parsed")
	assert.NotNil(t, newSet)
	assert.Equal(t, "user-77", newSet.SubjectId.Sub)

	altPrivateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	altPublicKey := altPrivateKey.PublicKey

	altGivenKey := keyfunc.NewGivenRSACustomWithOptions(&altPublicKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})

	altJwks := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"testkey": altGivenKey,
	})

	// Test with Wrong Public Key
	badSet, err := goSet.Parse(signString, altJwks)
	assert.NotNilf(t, err, "Check not valid")
	assert.IsTypef(t, &jwt.ValidationError{}, err, "Should be a jwt.ValidationError")
	assert.Nil(t, badSet, "No set should be returned - wrong key")

	// Test with corrupt signed message
	badSign := signString + "aaaa"
	badSet, err = goSet.Parse(badSign, jwks)
	assert.NotNilf(t, err, "Check not valid")
	assert.IsTypef(t, &jwt.ValidationError{}, err, "Should be a jwt.ValidationError")
	assert.Nil(t, badSet, "No set should be returned - bad signature")

	// Test for a bad token type
	testToken := jwt.NewWithClaims(jwt.SigningMethodRS256, testSet)
	testToken.Header["typ"] = "jwt"
	testToken.Header["kid"] = "testkey"
	badSignText, err := testToken.SignedString(privateKey)
	assert.NoError(t, err)

	badSet, err = goSet.Parse(badSignText, jwks)
	assert.Error(t, err, "token type is not `secevent+jwt`")
	assert.Equal(t, err.Error(), "token type is not `secevent+jwt`")
	assert.Nil(t, badSet)
}
