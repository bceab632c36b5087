package mock_provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc"
	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const CDbName = "ssf"
const CDefIssuer = "DEFAULT"
const CEnvIssuer = "SSF_ISSUER"
const CEnvDbName = "SSF_DBNAME"
const CEnvTokenIssuer = "SSF_TOKEN_ISSUER"
const CDefTokenIssuer = "DEFAULT"

var pLog = log.New(os.Stdout, "MOCK_DB:  ", log.Ldate|log.Ltime)

// Global shared storage for all mock instances
var (
	sharedStorageMu sync.RWMutex
	sharedStorage   = make(map[string]*MockDbProvider)
)

// MockDbProvider provides an in-memory implementation of the DbProviderInterface
type MockDbProvider struct {
	DbUrl  string
	DbName string
	dbInit bool
	mu     *sync.RWMutex

	streams       map[string]*model.StreamStateRecord
	keys          map[string]*JwkKeyRec
	events        map[string]*model.EventRecord
	queues        map[string][]*model.DeliveryQueueEntry // streamId -> queue entries (incl. acked/failed audit)
	clients       map[string]*model.SsfClient
	receivers     map[string]*model.ReceiverRecord // (projectId, alias) key -> record
	receiverKeys  map[string][]model.ReceiverKeyRec
	verifications map[string]*model.VerificationState

	DefaultIssuer string
	TokenIssuer   string
	tokenKey      *rsa.PrivateKey
	tokenPubKey   *keyfunc.JWKS
}

func (m *MockDbProvider) Name() string {
	return m.DbName
}

func (m *MockDbProvider) initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()

	pLog.Println("Initializing new in-memory mock database [" + m.DbName + "]")

	m.streams = make(map[string]*model.StreamStateRecord)
	m.keys = make(map[string]*JwkKeyRec)
	m.events = make(map[string]*model.EventRecord)
	m.queues = make(map[string][]*model.DeliveryQueueEntry)
	m.clients = make(map[string]*model.SsfClient)
	m.receivers = make(map[string]*model.ReceiverRecord)
	m.receiverKeys = make(map[string][]model.ReceiverKeyRec)
	m.verifications = make(map[string]*model.VerificationState)

	m.tokenKey = m.createIssuerJwkKeyPairUnlocked(m.DefaultIssuer, "")
	if m.DefaultIssuer != m.TokenIssuer {
		m.tokenKey = m.createIssuerJwkKeyPairUnlocked(m.TokenIssuer, "")
	}
	m.tokenPubKey = m.getInternalPublicTransmitterJWKSUnlocked(m.TokenIssuer)

	m.dbInit = true
}

func (m *MockDbProvider) Check() error {
	// Mock provider is always available
	return nil
}

func (m *MockDbProvider) ResetDb(initialize bool) error {
	m.mu.Lock()
	m.streams = make(map[string]*model.StreamStateRecord)
	m.keys = make(map[string]*JwkKeyRec)
	m.events = make(map[string]*model.EventRecord)
	m.queues = make(map[string][]*model.DeliveryQueueEntry)
	m.clients = make(map[string]*model.SsfClient)
	m.receivers = make(map[string]*model.ReceiverRecord)
	m.receiverKeys = make(map[string][]model.ReceiverKeyRec)
	m.verifications = make(map[string]*model.VerificationState)

	if initialize {
		m.tokenKey = m.createIssuerJwkKeyPairUnlocked(m.DefaultIssuer, "")
		if m.DefaultIssuer != m.TokenIssuer {
			m.tokenKey = m.createIssuerJwkKeyPairUnlocked(m.TokenIssuer, "")
		}
		m.tokenPubKey = m.getInternalPublicTransmitterJWKSUnlocked(m.TokenIssuer)
	}
	m.mu.Unlock()
	return nil
}

// Open creates and initializes a new MockDbProvider. Multiple calls with the
// same url share the same underlying storage.
func Open(url string, dbName string) (*MockDbProvider, error) {
	if !strings.HasPrefix(url, "mockdb:") && url != "" {
		return nil, fmt.Errorf("mock provider only supports 'mockdb:' URL prefix, got: %s", url)
	}

	defaultIssuer, issDefined := os.LookupEnv(CEnvIssuer)
	if !issDefined {
		defaultIssuer = CDefIssuer
	}

	if dbName == "" {
		dbEnvName, dbDefined := os.LookupEnv(CEnvDbName)
		if !dbDefined {
			dbName = CDbName
		} else {
			dbName = dbEnvName
		}
	}

	tknIssuer, tknDefined := os.LookupEnv(CEnvTokenIssuer)
	if !tknDefined {
		tknIssuer = CDefTokenIssuer
	}

	if url == "" {
		url = "mockdb://localhost/"
		pLog.Printf("Defaulting mock database URL: %s", url)
	}

	sharedStorageMu.Lock()
	defer sharedStorageMu.Unlock()

	if existing, ok := sharedStorage[url]; ok {
		pLog.Printf("Reusing existing mock database for URL: %s (dbName: %s)", url, dbName)
		wrapper := *existing
		wrapper.DbName = dbName
		return &wrapper, nil
	}

	m := &MockDbProvider{
		DbName:        dbName,
		DbUrl:         url,
		DefaultIssuer: defaultIssuer,
		TokenIssuer:   tknIssuer,
		mu:            &sync.RWMutex{},
	}

	if err := m.Check(); err != nil {
		return nil, err
	}
	m.initialize()

	sharedStorage[url] = m
	pLog.Printf("Created new shared mock database for URL: %s (dbName: %s)", url, dbName)
	return m, nil
}

func (m *MockDbProvider) Close() error {
	// No resources to clean up for in-memory provider
	return nil
}

func (m *MockDbProvider) getStates() []model.StreamStateRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.dbInit {
		pLog.Fatal("Mock DB Provider not initialized while attempting to retrieve stream configs")
	}

	var recs []model.StreamStateRecord
	for _, state := range m.streams {
		recs = append(recs, *state)
	}
	return recs
}

func (m *MockDbProvider) GetStateMap() map[string]model.StreamStateRecord {
	states := m.getStates()

	stateMap := make(map[string]model.StreamStateRecord, len(states))
	for _, state := range states {
		stateMap[state.StreamConfiguration.Id] = state
	}
	return stateMap
}

func (m *MockDbProvider) ListStreams() []model.StreamConfiguration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var streams []model.StreamConfiguration
	for _, state := range m.streams {
		streams = append(streams, state.StreamConfiguration)
	}
	return streams
}

func (m *MockDbProvider) DeleteStream(streamId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.streams[streamId]; !exists {
		return errors.New("not found")
	}
	delete(m.streams, streamId)
	delete(m.queues, streamId)
	delete(m.verifications, streamId)
	return nil
}

func (m *MockDbProvider) createIssuerJwkKeyPairUnlocked(issuer string, projectId string) *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	m.storeJwkKeyPairUnlocked(issuer, privateKey, projectId)
	return privateKey
}

func (m *MockDbProvider) CreateIssuerJwkKeyPair(issuer string, projectId string) *rsa.PrivateKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.createIssuerJwkKeyPairUnlocked(issuer, projectId)
}

func (m *MockDbProvider) storeJwkKeyPairUnlocked(issuer string, privateKey *rsa.PrivateKey, projectId string) {
	privateKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	publicKey := privateKey.PublicKey
	pubKeyBytes := x509.MarshalPKCS1PublicKey(&publicKey)

	keyPairRec := JwkKeyRec{
		Id:          primitive.NewObjectID(),
		Iss:         issuer,
		ProjectId:   projectId,
		KeyBytes:    privateKeyBytes,
		PubKeyBytes: pubKeyBytes,
	}

	m.keys[issuer] = &keyPairRec
}

// getInternalPublicTransmitterJWKSUnlocked retrieves public transmitter JWKS without acquiring a lock.
func (m *MockDbProvider) getInternalPublicTransmitterJWKSUnlocked(issuer string) *keyfunc.JWKS {
	rec, ok := m.keys[issuer]
	if !ok {
		pLog.Printf("Error: Key not found for issuer: %s", issuer)
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	givenKey := keyfunc.NewGivenRSACustomWithOptions(pubKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})
	givenKeys := make(map[string]keyfunc.GivenKey)
	givenKeys[issuer] = givenKey
	return keyfunc.NewGiven(givenKeys)
}

func (m *MockDbProvider) GetInternalPublicTransmitterJWKS(issuer string) *keyfunc.JWKS {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.getInternalPublicTransmitterJWKSUnlocked(issuer)
}

func (m *MockDbProvider) GetIssuerKeyNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	issuers := make([]string, 0, len(m.keys))
	for issuer := range m.keys {
		issuers = append(issuers, issuer)
	}
	return issuers
}

func (m *MockDbProvider) GetPublicTransmitterJWKS(issuer string) *json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.keys[issuer]
	if !ok {
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	jwkstore := jwkset.NewMemoryStorage()

	metadata := jwkset.JWKMetadataOptions{
		KID: issuer,
	}
	jwkOptions := jwkset.JWKOptions{
		Metadata: metadata,
	}

	jwkSet, err := jwkset.NewJWKFromKey(pubKey, jwkOptions)
	if err != nil {
		pLog.Println("Error parsing rsa key into jwk: " + err.Error())
		return nil
	}
	err = jwkstore.KeyWrite(context.Background(), jwkSet)
	if err != nil {
		pLog.Println("Error creating JWKS for key issuer: " + issuer + ": " + err.Error())
		return nil
	}

	response, err := jwkstore.JSONPublic(context.Background())
	if err != nil {
		pLog.Println("Error creating JWKS response: " + err.Error())
		return nil
	}

	return &response
}

func (m *MockDbProvider) GetIssuerPrivateKey(issuer string) (*rsa.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.keys[issuer]
	if !ok {
		return nil, fmt.Errorf("issuer key not found: %s", issuer)
	}

	return x509.ParsePKCS1PrivateKey(rec.KeyBytes)
}

func (m *MockDbProvider) RegisterClient(client model.SsfClient, projectId string) *model.RegisterResponse {
	m.mu.Lock()
	client.Id = primitive.NewObjectID()
	clientId := client.Id.Hex()
	m.clients[clientId] = &client
	m.mu.Unlock()

	token, err := m.GetAuthIssuer().IssueStreamClientToken(client, projectId, true)
	if err != nil {
		pLog.Println("Error issuing stream admin token: " + err.Error())
		return nil
	}

	return &model.RegisterResponse{Token: token}
}

func (m *MockDbProvider) CreateStream(request model.StreamConfiguration, projectId string) (model.StreamConfiguration, error) {
	mid := primitive.NewObjectID()

	var config model.StreamConfiguration

	if request.Iss == "" {
		config.Iss = m.DefaultIssuer
	} else {
		config.Iss = request.Iss
	}

	config.Id = mid.Hex()
	config.Aud = request.Aud
	config.EventsSupported = model.GetSupportedEvents()

	config.EventsRequested = request.EventsRequested
	config.EventsDelivered = CalculateDeliveredEvents(request.EventsRequested, config.EventsSupported)

	switch request.Delivery.GetMethod() {
	case model.DeliveryPush:
		config.Delivery = request.Delivery
	default:
		// Poll is the default delivery method
		authToken, _ := m.GetAuthIssuer().IssueStreamToken(mid.Hex(), projectId)
		config.Delivery = &model.OneOfStreamConfigurationDelivery{
			PollDeliveryMethod: &model.PollDeliveryMethod{
				Method:              model.DeliveryPoll,
				EndpointUrl:         fmt.Sprintf("/poll/%s", mid.Hex()),
				AuthorizationHeader: "Bearer " + authToken,
			},
		}
	}

	config.MinVerificationInterval = 15

	if request.IssuerJWKSUrl != "" {
		config.IssuerJWKSUrl = request.IssuerJWKSUrl
	} else {
		config.IssuerJWKSUrl = "/jwks/" + config.Iss
	}

	now := time.Now()

	streamRec := model.StreamStateRecord{
		Id:                  mid,
		ProjectId:           projectId,
		StreamConfiguration: config,
		Status:              model.StreamStatusEnabled,
		CreatedAt:           now,
		ModifiedAt:          now,
	}

	m.mu.Lock()
	m.streams[config.Id] = &streamRec
	m.mu.Unlock()

	return config, nil
}

// CalculateDeliveredEvents intersects the requested event set (with * wildcard
// support) against the supported set. An empty requested set asks for
// everything the transmitter supports.
func CalculateDeliveredEvents(requested []string, supported []string) []string {
	var delivered []string
	if len(requested) == 0 || requested[0] == "*" {
		return supported
	}

	for _, reqUri := range requested {
		compUri := "(?i)" + reqUri
		if strings.Contains(reqUri, "*") {
			compUri = strings.Replace(compUri, "*", ".*", -1)
		}

		for _, eventUri := range supported {
			match, err := regexp.MatchString(compUri, eventUri)
			if err != nil {
				continue
			} // ignore bad input
			if match {
				delivered = append(delivered, eventUri)
			}
		}
	}
	return delivered
}

func (m *MockDbProvider) UpdateStream(streamId string, projectId string, configReq model.StreamConfiguration) (*model.StreamConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, exists := m.streams[streamId]
	if !exists {
		return nil, errors.New("stream not found")
	}

	if state.ProjectId != projectId {
		return nil, errors.New("invalid project_id - invalid token")
	}

	config := &state.StreamConfiguration

	if configReq.Delivery != nil {
		config.Delivery = configReq.Delivery
	}

	if len(configReq.EventsRequested) > 0 {
		config.EventsRequested = configReq.EventsRequested
		eventsSupported := configReq.EventsSupported
		if len(eventsSupported) == 0 {
			eventsSupported = config.EventsSupported
		}
		config.EventsDelivered = CalculateDeliveredEvents(configReq.EventsRequested, eventsSupported)
	}

	state.ModifiedAt = time.Now()
	return config, nil
}

func (m *MockDbProvider) GetStreamState(id string) (*model.StreamStateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.streams[id]; ok {
		return state, nil
	}
	return nil, errors.New("stream not found")
}

func (m *MockDbProvider) UpdateStreamStatus(streamId string, status string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.streams[streamId]; ok {
		state.Status = status
		state.StatusReason = reason
		state.ModifiedAt = time.Now()
	}
}

func (m *MockDbProvider) GetStatus(streamId string) (*model.StreamStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.streams[streamId]
	if !ok {
		return nil, errors.New("stream not found")
	}

	return &model.StreamStatus{
		StreamId: streamId,
		Status:   state.Status,
		Reason:   state.StatusReason,
	}, nil
}

func (m *MockDbProvider) GetStream(id string) (*model.StreamConfiguration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.streams[id]; ok {
		return &state.StreamConfiguration, nil
	}
	return nil, errors.New("stream not found")
}

func (m *MockDbProvider) AddEvent(event *goSet.SecurityEventToken, raw string) *model.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(event.Events))
	for k := range event.Events {
		keys = append(keys, k)
	}

	var sortTime time.Time
	if event.TimeOfEvent != nil {
		sortTime = event.TimeOfEvent.Time
	} else if event.IssuedAt != nil {
		sortTime = event.IssuedAt.Time
	} else {
		sortTime = time.Now()
	}

	eventRecord := &model.EventRecord{
		Jti:      event.ID,
		Event:    *event,
		Raw:      raw,
		Types:    keys,
		SortTime: sortTime,
	}

	m.events[event.ID] = eventRecord
	return eventRecord
}

func (m *MockDbProvider) AddEventToStream(jti string, streamId string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[jti]; !ok {
		return
	}
	for _, entry := range m.queues[streamId] {
		if entry.Jti == jti {
			return
		}
	}
	m.queues[streamId] = append(m.queues[streamId], &model.DeliveryQueueEntry{
		StreamId:   streamId,
		Jti:        jti,
		EnqueuedAt: time.Now(),
	})
}

// AckEvent marks a queue entry acknowledged. Acknowledging an unknown or
// already acknowledged jti is a no-op.
func (m *MockDbProvider) AckEvent(jti string, streamId string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.queues[streamId] {
		if entry.Jti == jti && !entry.Acknowledged {
			entry.Acknowledged = true
			entry.AckedAt = time.Now()
			return
		}
	}
}

// FailEvent removes an entry from delivery while keeping the audit record.
func (m *MockDbProvider) FailEvent(jti string, streamId string, errInfo model.SetErrorType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range m.queues[streamId] {
		if entry.Jti == jti && !entry.Acknowledged && !entry.Failed {
			entry.Failed = true
			entry.ErrCode = errInfo.Error
			entry.ErrDetail = errInfo.Description
			return
		}
	}
}

func (m *MockDbProvider) GetEventIds(streamId string, params model.PollParameters) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []string
	for _, entry := range m.queues[streamId] {
		if !entry.Acknowledged && !entry.Failed {
			pending = append(pending, entry.Jti)
		}
	}
	if len(pending) == 0 {
		return []string{}, false
	}

	maxEvents := params.MaxEvents
	if maxEvents <= 0 || maxEvents > len(pending) {
		maxEvents = len(pending)
	}
	return pending[:maxEvents], len(pending) > maxEvents
}

func (m *MockDbProvider) GetEvent(jti string) *goSet.SecurityEventToken {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if eventRec, ok := m.events[jti]; ok {
		return &eventRec.Event
	}
	return nil
}

func (m *MockDbProvider) GetEventRecord(jti string) *model.EventRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if eventRec, ok := m.events[jti]; ok {
		return eventRec
	}
	return nil
}

func (m *MockDbProvider) GetEvents(jtis []string) []*goSet.SecurityEventToken {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var events []*goSet.SecurityEventToken
	for _, jti := range jtis {
		if eventRec, ok := m.events[jti]; ok {
			events = append(events, &eventRec.Event)
		}
	}
	return events
}

func receiverKey(projectId string, alias string) string {
	return projectId + "/" + alias
}

func (m *MockDbProvider) PutReceiver(rec *model.ReceiverRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.receivers[receiverKey(rec.ProjectId, rec.Alias)] = rec
	return nil
}

func (m *MockDbProvider) GetReceiver(projectId string, alias string) (*model.ReceiverRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.receivers[receiverKey(projectId, alias)]; ok {
		return rec, nil
	}
	return nil, errors.New("receiver not found")
}

func (m *MockDbProvider) ListReceivers(projectId string) []model.ReceiverRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []model.ReceiverRecord
	for _, rec := range m.receivers {
		if projectId == "" || rec.ProjectId == projectId {
			recs = append(recs, *rec)
		}
	}
	return recs
}

func (m *MockDbProvider) DeleteReceiver(projectId string, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := receiverKey(projectId, alias)
	if _, ok := m.receivers[key]; !ok {
		return errors.New("receiver not found")
	}
	delete(m.receivers, key)
	return nil
}

func (m *MockDbProvider) StoreReceiverKey(rec model.ReceiverKeyRec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.receiverKeys[rec.ReceiverId]
	for i, existing := range keys {
		if existing.Kid == rec.Kid {
			keys[i] = rec
			return nil
		}
	}
	m.receiverKeys[rec.ReceiverId] = append(keys, rec)
	return nil
}

func (m *MockDbProvider) GetReceiverKeys(receiverId string) []model.ReceiverKeyRec {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]model.ReceiverKeyRec{}, m.receiverKeys[receiverId]...)
}

func (m *MockDbProvider) GetReceiverJwks(receiverId string) *keyfunc.JWKS {
	m.mu.RLock()
	keys := m.receiverKeys[receiverId]
	m.mu.RUnlock()

	if len(keys) == 0 {
		return nil
	}

	var doc bytes.Buffer
	doc.WriteString(`{"keys":[`)
	for i, rec := range keys {
		if i > 0 {
			doc.WriteString(",")
		}
		doc.Write(rec.PublicKey)
	}
	doc.WriteString(`]}`)

	jwks, err := keyfunc.NewJSON(doc.Bytes())
	if err != nil {
		pLog.Printf("Error assembling JWKS for receiver %s: %s", receiverId, err.Error())
		return nil
	}
	return jwks
}

func (m *MockDbProvider) DeleteReceiverKeys(receiverId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.receiverKeys, receiverId)
	return nil
}

func (m *MockDbProvider) PutVerificationState(state model.VerificationState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.verifications[state.StreamId]; ok {
		pLog.Printf("Superseding pending verification state for stream %s (issued %s)", state.StreamId, prior.CreatedAt.Format(time.RFC3339))
	}
	m.verifications[state.StreamId] = &state
}

func (m *MockDbProvider) GetVerificationState(streamId string) *model.VerificationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.verifications[streamId]
	if !ok {
		return nil
	}
	if state.IsExpired() {
		delete(m.verifications, streamId)
		return nil
	}
	copyState := *state
	return &copyState
}

func (m *MockDbProvider) ClearVerificationState(streamId string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.verifications, streamId)
}

func (m *MockDbProvider) GetAuthIssuer() *authUtil.AuthIssuer {
	privateKey, err := m.GetIssuerPrivateKey(m.TokenIssuer)
	if err != nil {
		pLog.Printf("Error getting token private key: %s", err.Error())
		return nil
	}

	return &authUtil.AuthIssuer{
		TokenIssuer: m.TokenIssuer,
		PrivateKey:  privateKey,
		PublicKey:   m.tokenPubKey,
	}
}

func (m *MockDbProvider) GetAuthValidatorPubKey() *keyfunc.JWKS {
	return m.tokenPubKey
}
