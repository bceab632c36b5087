package mongo_provider

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
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc"
	"github.com/i2-open/goSharedSignals/internal/authUtil"
	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CDbName = "ssf"
const CDbStreamCfg = "streams"
const CDbKeys = "keys"
const CDbEvents = "events"
const CDbQueue = "deliveryQueue"
const CDbClients = "clients"
const CDbReceivers = "receivers"
const CDbReceiverKeys = "receiverKeys"
const CDbVerifications = "verifications"

const CDefIssuer = "DEFAULT"
const CEnvIssuer = "SSF_ISSUER"
const CEnvDbName = "SSF_DBNAME"
const CEnvTokenIssuer = "SSF_TOKEN_ISSUER"
const CDefTokenIssuer = "DEFAULT"

var pLog = log.New(os.Stdout, "MONGO:       ", log.Ldate|log.Ltime)

type MongoProvider struct {
	DbUrl  string
	DbName string
	client *mongo.Client
	dbInit bool
	ssfDb  *mongo.Database

	streamCol       *mongo.Collection
	keyCol          *mongo.Collection
	eventCol        *mongo.Collection
	queueCol        *mongo.Collection
	clientCol       *mongo.Collection
	receiverCol     *mongo.Collection
	receiverKeyCol  *mongo.Collection
	verificationCol *mongo.Collection

	DefaultIssuer string
	TokenIssuer   string
	tokenKey      *rsa.PrivateKey
	tokenPubKey   *keyfunc.JWKS
}

func (m *MongoProvider) Name() string {
	return m.DbName
}

func (m *MongoProvider) initialize(ctx context.Context) {
	dbNames, err := m.client.ListDatabaseNames(ctx, bson.M{})
	if err != nil {
		pLog.Fatal(err)
	}

	exists := false
	for _, name := range dbNames {
		if name == m.DbName {
			exists = true
			break
		}
	}

	m.ssfDb = m.client.Database(m.DbName)
	m.streamCol = m.ssfDb.Collection(CDbStreamCfg)
	m.keyCol = m.ssfDb.Collection(CDbKeys)
	m.eventCol = m.ssfDb.Collection(CDbEvents)
	m.queueCol = m.ssfDb.Collection(CDbQueue)
	m.clientCol = m.ssfDb.Collection(CDbClients)
	m.receiverCol = m.ssfDb.Collection(CDbReceivers)
	m.receiverKeyCol = m.ssfDb.Collection(CDbReceiverKeys)
	m.verificationCol = m.ssfDb.Collection(CDbVerifications)

	if exists {
		pLog.Println("Connected to existing database [" + m.DbName + "]")
		m.tokenKey, err = m.GetIssuerPrivateKey(m.TokenIssuer)
		if err != nil {
			pLog.Fatal("Unable to load token issuer key: " + err.Error())
		}
		m.tokenPubKey = m.GetInternalPublicTransmitterJWKS(m.TokenIssuer)
		m.dbInit = true
		return
	}

	pLog.Println("Initializing new database [" + m.DbName + "]")

	m.tokenKey = m.CreateIssuerJwkKeyPair(m.DefaultIssuer, "")
	if m.DefaultIssuer != m.TokenIssuer {
		m.tokenKey = m.CreateIssuerJwkKeyPair(m.TokenIssuer, "")
	}
	m.tokenPubKey = m.GetInternalPublicTransmitterJWKS(m.TokenIssuer)

	indexSid := mongo.IndexModel{
		Keys: bson.D{
			{Key: "sid", Value: 1},
		},
	}
	_, err = m.queueCol.Indexes().CreateOne(context.TODO(), indexSid)
	if err != nil {
		pLog.Println(err.Error())
	}

	indexReceiver := mongo.IndexModel{
		Keys: bson.D{
			{Key: "receiver_id", Value: 1},
		},
	}
	_, err = m.receiverKeyCol.Indexes().CreateOne(context.TODO(), indexReceiver)
	if err != nil {
		pLog.Println(err.Error())
	}

	m.dbInit = true
}

func (m *MongoProvider) Check() error {
	return m.client.Ping(context.Background(), nil)
}

func (m *MongoProvider) ResetDb(initialize bool) error {
	err := m.ssfDb.Drop(context.TODO())
	m.dbInit = false

	if initialize {
		m.initialize(context.TODO())
	}
	return err
}

/*
Open connects to the Mongo database at the URL and dbName specified and
initializes the collections if needed. If dbName is empty, SSF_DBNAME or the
default "ssf" is used.
*/
func Open(mongoUrl string, dbName string) (*MongoProvider, error) {
	ctx := context.Background()

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

	if mongoUrl == "" {
		mongoUrl = "mongodb://localhost:27017/"
		pLog.Printf("Defaulting Mongo Database to local: %s", mongoUrl)
	}

	opts := options.Client().ApplyURI(mongoUrl)
	client, err := mongo.NewClient(opts)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(ctx); err != nil {
		pLog.Printf("Error connecting to: %s.", mongoUrl)
		return nil, err
	}

	m := MongoProvider{
		DbName:        dbName,
		DbUrl:         mongoUrl,
		client:        client,
		DefaultIssuer: defaultIssuer,
		TokenIssuer:   tknIssuer,
	}

	m.initialize(ctx)

	return &m, nil
}

func (m *MongoProvider) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m *MongoProvider) getStates() []model.StreamStateRecord {
	if !m.dbInit {
		pLog.Fatal("Mongo DB Provider not initialized while attempting to retrieve stream configs")
	}

	cursor, err := m.streamCol.Find(context.TODO(), bson.D{})
	if err != nil {
		pLog.Printf("Error listing stream configs: %v", err)
		return nil
	}
	var recs []model.StreamStateRecord
	err = cursor.All(context.TODO(), &recs)
	if err != nil {
		pLog.Printf("Error parsing stream configs: %v", err)
		return nil
	}
	return recs
}

func (m *MongoProvider) GetStateMap() map[string]model.StreamStateRecord {
	states := m.getStates()

	stateMap := make(map[string]model.StreamStateRecord, len(states))
	for _, state := range states {
		stateMap[state.StreamConfiguration.Id] = state
	}
	return stateMap
}

func (m *MongoProvider) ListStreams() []model.StreamConfiguration {
	recs := m.getStates()

	res := make([]model.StreamConfiguration, len(recs))
	for i, v := range recs {
		res[i] = v.StreamConfiguration
	}
	return res
}

func (m *MongoProvider) DeleteStream(streamId string) error {
	docId, _ := primitive.ObjectIDFromHex(streamId)
	filter := bson.M{"_id": docId}

	resp, err := m.streamCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return err
	}
	if resp.DeletedCount == 0 {
		return errors.New("not found")
	}

	_, _ = m.queueCol.DeleteMany(context.TODO(), bson.M{"sid": streamId})
	_, _ = m.verificationCol.DeleteMany(context.TODO(), bson.M{"stream_id": streamId})
	return nil
}

func (m *MongoProvider) CreateIssuerJwkKeyPair(issuer string, projectId string) *rsa.PrivateKey {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	err = m.storeJwkKeyPair(issuer, privateKey, projectId)
	if err == nil {
		return privateKey
	}

	pLog.Printf("Error generating key pair: %s", err.Error())
	return nil
}

func (m *MongoProvider) storeJwkKeyPair(issuer string, privateKey *rsa.PrivateKey, projectId string) error {
	privKeyBytes := x509.MarshalPKCS1PrivateKey(privateKey)
	publicKey := privateKey.PublicKey
	pubKeyBytes := x509.MarshalPKCS1PublicKey(&publicKey)

	keyPairRec := JwkKeyRec{
		Id:          primitive.NewObjectID(),
		Iss:         issuer,
		ProjectId:   projectId,
		KeyBytes:    privKeyBytes,
		PubKeyBytes: pubKeyBytes,
	}

	_, err := m.keyCol.InsertOne(context.TODO(), &keyPairRec)
	return err
}

func (m *MongoProvider) getIssuerKeyRec(issuer string) (*JwkKeyRec, error) {
	filter := bson.D{{Key: "iss", Value: issuer}}

	res := m.keyCol.FindOne(context.TODO(), filter)
	if res.Err() != nil {
		return nil, fmt.Errorf("issuer key not found: %s", issuer)
	}

	var rec JwkKeyRec
	err := res.Decode(&rec)
	if err != nil {
		pLog.Printf("Error parsing JwkKeyRec: %s", err.Error())
		return nil, err
	}
	return &rec, nil
}

func (m *MongoProvider) GetInternalPublicTransmitterJWKS(issuer string) *keyfunc.JWKS {
	rec, err := m.getIssuerKeyRec(issuer)
	if err != nil {
		pLog.Printf("Error: %s", err.Error())
		return nil
	}

	pubKey, err := x509.ParsePKCS1PublicKey(rec.PubKeyBytes)
	if err != nil {
		pLog.Printf("Error parsing public key: %s", err.Error())
		return nil
	}

	gkey := keyfunc.NewGivenRSACustomWithOptions(pubKey, keyfunc.GivenKeyOptions{
		Algorithm: "RS256",
	})
	givenKeys := make(map[string]keyfunc.GivenKey)
	givenKeys[issuer] = gkey
	return keyfunc.NewGiven(givenKeys)
}

func (m *MongoProvider) GetPublicTransmitterJWKS(issuer string) *json.RawMessage {
	rec, err := m.getIssuerKeyRec(issuer)
	if err != nil {
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

func (m *MongoProvider) GetIssuerPrivateKey(issuer string) (*rsa.PrivateKey, error) {
	rec, err := m.getIssuerKeyRec(issuer)
	if err != nil {
		return nil, err
	}
	if len(rec.KeyBytes) == 0 {
		return nil, errors.New("no key found for: " + issuer)
	}

	return x509.ParsePKCS1PrivateKey(rec.KeyBytes)
}

func (m *MongoProvider) RegisterClient(client model.SsfClient, projectId string) *model.RegisterResponse {
	client.Id = primitive.NewObjectID()
	_, err := m.clientCol.InsertOne(context.TODO(), &client)
	if err != nil {
		pLog.Println("Error registering client: " + err.Error())
		return nil
	}

	token, err := m.GetAuthIssuer().IssueStreamClientToken(client, projectId, true)
	if err != nil {
		pLog.Println("Error issuing stream admin token: " + err.Error())
		return nil
	}

	return &model.RegisterResponse{Token: token}
}

func (m *MongoProvider) CreateStream(request model.StreamConfiguration, projectId string) (model.StreamConfiguration, error) {
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

	_, err := m.streamCol.InsertOne(context.TODO(), &streamRec)
	return config, err
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
			}
			if match {
				delivered = append(delivered, eventUri)
			}
		}
	}
	return delivered
}

func (m *MongoProvider) UpdateStream(streamId string, projectId string, configReq model.StreamConfiguration) (*model.StreamConfiguration, error) {
	streamRec, err := m.GetStreamState(streamId)
	if err != nil {
		return nil, err
	}

	if streamRec.ProjectId != projectId {
		return nil, errors.New("invalid project_id - invalid token")
	}

	config := streamRec.StreamConfiguration

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

	streamRec.StreamConfiguration = config
	streamRec.ModifiedAt = time.Now()

	docId, _ := primitive.ObjectIDFromHex(streamId)
	filter := bson.M{"_id": docId}
	res, err := m.streamCol.ReplaceOne(context.TODO(), filter, streamRec)
	if err != nil {
		return nil, errors.New("stream update error: " + err.Error())
	}
	if res.ModifiedCount == 0 {
		return nil, errors.New("stream not updated")
	}
	return &config, nil
}

func (m *MongoProvider) GetStreamState(id string) (*model.StreamStateRecord, error) {
	docId, _ := primitive.ObjectIDFromHex(id)
	filter := bson.M{"_id": docId}

	res := m.streamCol.FindOne(context.TODO(), filter)
	if res.Err() == mongo.ErrNoDocuments {
		return nil, errors.New("stream not found")
	}
	var rec model.StreamStateRecord

	err := res.Decode(&rec)
	if err != nil {
		pLog.Printf("Error parsing StreamStateRecord: %s", err.Error())
		return nil, err
	}
	return &rec, nil
}

func (m *MongoProvider) UpdateStreamStatus(streamId string, status string, reason string) {
	docId, _ := primitive.ObjectIDFromHex(streamId)
	filter := bson.M{"_id": docId}
	update := bson.M{"$set": bson.M{
		"status":      status,
		"reason":      reason,
		"modified_at": time.Now(),
	}}
	_, err := m.streamCol.UpdateOne(context.TODO(), filter, update)
	if err != nil {
		pLog.Printf("Error updating stream status for %s: %s", streamId, err.Error())
	}
}

func (m *MongoProvider) GetStatus(streamId string) (*model.StreamStatus, error) {
	state, err := m.GetStreamState(streamId)
	if err != nil {
		return nil, err
	}

	return &model.StreamStatus{
		StreamId: streamId,
		Status:   state.Status,
		Reason:   state.StatusReason,
	}, nil
}

func (m *MongoProvider) GetStream(id string) (*model.StreamConfiguration, error) {
	rec, err := m.GetStreamState(id)
	if err != nil {
		return nil, err
	}
	config := rec.StreamConfiguration
	return &config, nil
}

func (m *MongoProvider) AddEvent(event *goSet.SecurityEventToken, raw string) *model.EventRecord {
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

	rec := model.EventRecord{
		Jti:      event.ID,
		Event:    *event,
		Raw:      raw,
		Types:    keys,
		SortTime: sortTime,
	}

	_, err := m.eventCol.InsertOne(context.TODO(), &rec)
	if err != nil {
		pLog.Println(err.Error())
		return nil
	}
	return &rec
}

func (m *MongoProvider) AddEventToStream(jti string, streamId string) {
	filter := bson.D{
		{Key: "jti", Value: jti},
		{Key: "sid", Value: streamId},
	}
	count, _ := m.queueCol.CountDocuments(context.TODO(), filter)
	if count > 0 {
		return
	}

	entry := model.DeliveryQueueEntry{
		StreamId:   streamId,
		Jti:        jti,
		EnqueuedAt: time.Now(),
	}
	_, err := m.queueCol.InsertOne(context.TODO(), &entry)
	if err != nil {
		pLog.Println(err.Error())
	}
}

// AckEvent marks a queue entry acknowledged. Acknowledging an unknown or
// already acknowledged jti is a no-op.
func (m *MongoProvider) AckEvent(jti string, streamId string) {
	filter := bson.D{
		{Key: "jti", Value: jti},
		{Key: "sid", Value: streamId},
		{Key: "acknowledged", Value: false},
	}
	update := bson.M{"$set": bson.M{
		"acknowledged": true,
		"acked_at":     time.Now(),
	}}
	_, err := m.queueCol.UpdateOne(context.TODO(), filter, update)
	if err != nil {
		pLog.Println(err.Error())
	}
}

// FailEvent removes an entry from delivery while keeping the audit record.
func (m *MongoProvider) FailEvent(jti string, streamId string, errInfo model.SetErrorType) {
	filter := bson.D{
		{Key: "jti", Value: jti},
		{Key: "sid", Value: streamId},
		{Key: "acknowledged", Value: false},
		{Key: "failed", Value: false},
	}
	update := bson.M{"$set": bson.M{
		"failed":     true,
		"err_code":   errInfo.Error,
		"err_detail": errInfo.Description,
	}}
	_, err := m.queueCol.UpdateOne(context.TODO(), filter, update)
	if err != nil {
		pLog.Println(err.Error())
	}
}

func (m *MongoProvider) GetEventIds(streamId string, params model.PollParameters) ([]string, bool) {
	filter := bson.D{
		{Key: "sid", Value: streamId},
		{Key: "acknowledged", Value: false},
		{Key: "failed", Value: false},
	}

	opts := options.Find().SetSort(bson.D{{Key: "enqueued_at", Value: 1}})
	if params.MaxEvents > 0 {
		opts.SetLimit(int64(params.MaxEvents))
	}

	totalCount, _ := m.queueCol.CountDocuments(context.TODO(), filter, options.Count())

	if totalCount == 0 {
		if params.ReturnImmediately {
			return []string{}, false
		}

		// Wait for a queue insert for this stream via a change stream
		matchInserts := bson.D{
			{
				Key: "$match", Value: bson.D{
					{Key: "operationType", Value: "insert"},
					{Key: "fullDocument.sid", Value: streamId}},
			},
		}

		var csOpts options.ChangeStreamOptions
		if params.TimeoutSecs > 0 {
			wait := time.Duration(float64(time.Second) * float64(params.TimeoutSecs))
			csOpts.SetMaxAwaitTime(wait)
		}

		eventStream, err := m.queueCol.Watch(context.TODO(), mongo.Pipeline{matchInserts}, &csOpts)
		if err != nil {
			pLog.Println("Error: Unable to initialize event stream: " + err.Error())
			return []string{}, false
		}

		routineCtx := context.Background()
		defer eventStream.Close(routineCtx)
		if eventStream.Next(routineCtx) {
			var change queueChangeEvent
			if err := eventStream.Decode(&change); err == nil {
				pLog.Printf("Queue insert for sid [%s]: jti %s", streamId, change.FullDocument.Jti)
			}
			// now that there are events to return, re-poll
			return m.GetEventIds(streamId, params)
		}
		if routineCtx.Err() != nil {
			pLog.Printf("Error occurred waiting for events on sid [%v]: %s", streamId, routineCtx.Err().Error())
		}
		return []string{}, false
	}

	var entries []model.DeliveryQueueEntry
	cursor, err := m.queueCol.Find(context.TODO(), filter, opts)
	if err != nil {
		pLog.Println("Error getting event batch: " + err.Error())
		return []string{}, false
	}
	if err = cursor.All(context.TODO(), &entries); err != nil {
		pLog.Println("Error getting event batch: " + err.Error())
		return []string{}, false
	}

	ids := make([]string, len(entries))
	for i, v := range entries {
		ids[i] = v.Jti
	}

	return ids, len(ids) < int(totalCount)
}

func (m *MongoProvider) GetEvent(jti string) *goSet.SecurityEventToken {
	rec := m.GetEventRecord(jti)
	if rec == nil {
		return nil
	}
	return &rec.Event
}

func (m *MongoProvider) GetEventRecord(jti string) *model.EventRecord {
	filter := bson.D{
		{Key: "jti", Value: jti},
	}
	var res model.EventRecord
	cursor := m.eventCol.FindOne(context.TODO(), filter)
	err := cursor.Decode(&res)
	if err != nil {
		pLog.Println(err.Error())
		return nil
	}
	return &res
}

func (m *MongoProvider) GetEvents(jtis []string) []*goSet.SecurityEventToken {
	var res []*goSet.SecurityEventToken
	for _, v := range jtis {
		if event := m.GetEvent(v); event != nil {
			res = append(res, event)
		}
	}
	return res
}

func (m *MongoProvider) PutReceiver(rec *model.ReceiverRecord) error {
	filter := bson.D{
		{Key: "project_id", Value: rec.ProjectId},
		{Key: "alias", Value: rec.Alias},
	}
	opts := options.Replace().SetUpsert(true)
	_, err := m.receiverCol.ReplaceOne(context.TODO(), filter, rec, opts)
	return err
}

func (m *MongoProvider) GetReceiver(projectId string, alias string) (*model.ReceiverRecord, error) {
	filter := bson.D{
		{Key: "project_id", Value: projectId},
		{Key: "alias", Value: alias},
	}
	res := m.receiverCol.FindOne(context.TODO(), filter)
	if res.Err() != nil {
		return nil, errors.New("receiver not found")
	}

	var rec model.ReceiverRecord
	if err := res.Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MongoProvider) ListReceivers(projectId string) []model.ReceiverRecord {
	filter := bson.D{}
	if projectId != "" {
		filter = bson.D{{Key: "project_id", Value: projectId}}
	}

	cursor, err := m.receiverCol.Find(context.TODO(), filter)
	if err != nil {
		pLog.Printf("Error listing receivers: %v", err)
		return nil
	}
	var recs []model.ReceiverRecord
	if err = cursor.All(context.TODO(), &recs); err != nil {
		pLog.Printf("Error parsing receivers: %v", err)
		return nil
	}
	return recs
}

func (m *MongoProvider) DeleteReceiver(projectId string, alias string) error {
	filter := bson.D{
		{Key: "project_id", Value: projectId},
		{Key: "alias", Value: alias},
	}
	res, err := m.receiverCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return errors.New("receiver not found")
	}
	return nil
}

func (m *MongoProvider) StoreReceiverKey(rec model.ReceiverKeyRec) error {
	filter := bson.D{
		{Key: "receiver_id", Value: rec.ReceiverId},
		{Key: "kid", Value: rec.Kid},
	}
	opts := options.Replace().SetUpsert(true)
	_, err := m.receiverKeyCol.ReplaceOne(context.TODO(), filter, &rec, opts)
	return err
}

func (m *MongoProvider) GetReceiverKeys(receiverId string) []model.ReceiverKeyRec {
	filter := bson.D{{Key: "receiver_id", Value: receiverId}}

	cursor, err := m.receiverKeyCol.Find(context.TODO(), filter)
	if err != nil {
		pLog.Printf("Error listing receiver keys: %v", err)
		return nil
	}
	var recs []model.ReceiverKeyRec
	if err = cursor.All(context.TODO(), &recs); err != nil {
		pLog.Printf("Error parsing receiver keys: %v", err)
		return nil
	}
	return recs
}

func (m *MongoProvider) GetReceiverJwks(receiverId string) *keyfunc.JWKS {
	keys := m.GetReceiverKeys(receiverId)
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

func (m *MongoProvider) DeleteReceiverKeys(receiverId string) error {
	filter := bson.D{{Key: "receiver_id", Value: receiverId}}
	_, err := m.receiverKeyCol.DeleteMany(context.TODO(), filter)
	return err
}

func (m *MongoProvider) PutVerificationState(state model.VerificationState) {
	filter := bson.D{{Key: "stream_id", Value: state.StreamId}}
	opts := options.Replace().SetUpsert(true)
	_, err := m.verificationCol.ReplaceOne(context.TODO(), filter, &state, opts)
	if err != nil {
		pLog.Printf("Error storing verification state for %s: %s", state.StreamId, err.Error())
	}
}

func (m *MongoProvider) GetVerificationState(streamId string) *model.VerificationState {
	filter := bson.D{{Key: "stream_id", Value: streamId}}
	res := m.verificationCol.FindOne(context.TODO(), filter)
	if res.Err() != nil {
		return nil
	}

	var state model.VerificationState
	if err := res.Decode(&state); err != nil {
		pLog.Printf("Error parsing verification state: %s", err.Error())
		return nil
	}
	if state.IsExpired() {
		m.ClearVerificationState(streamId)
		return nil
	}
	return &state
}

func (m *MongoProvider) ClearVerificationState(streamId string) {
	filter := bson.D{{Key: "stream_id", Value: streamId}}
	_, err := m.verificationCol.DeleteOne(context.TODO(), filter)
	if err != nil {
		pLog.Printf("Error clearing verification state for %s: %s", streamId, err.Error())
	}
}

func (m *MongoProvider) GetAuthIssuer() *authUtil.AuthIssuer {
	return &authUtil.AuthIssuer{
		TokenIssuer: m.TokenIssuer,
		PrivateKey:  m.tokenKey,
		PublicKey:   m.tokenPubKey,
	}
}

func (m *MongoProvider) GetAuthValidatorPubKey() *keyfunc.JWKS {
	return m.tokenPubKey
}
