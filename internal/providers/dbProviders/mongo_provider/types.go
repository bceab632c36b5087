package mongo_provider

import (
	"github.com/i2-open/goSharedSignals/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JwkKeyRec struct {
	Id          primitive.ObjectID `json:"id" bson:"_id"`
	Iss         string             `json:"iss,omitempty" bson:"iss"`
	ProjectId   string             `json:"projectId,omitempty" bson:"project_id"`
	KeyBytes    []byte             `json:"keyBytes" bson:"key_bytes"`
	PubKeyBytes []byte             `json:"pubJwks" bson:"pub_jwks"`
}

type documentKey struct {
	ID primitive.ObjectID `bson:"_id"`
}

type changeID struct {
	Data string `bson:"_data"`
}

type namespace struct {
	Db   string `bson:"db"`
	Coll string `bson:"coll"`
}

// queueChangeEvent holds a changeEvent for the delivery queue collection
// https://docs.mongodb.com/manual/reference/change-events/
type queueChangeEvent struct {
	ID            changeID                 `bson:"_id"`
	OperationType string                   `bson:"operationType"`
	ClusterTime   primitive.Timestamp      `bson:"clusterTime"`
	FullDocument  model.DeliveryQueueEntry `bson:"fullDocument"`
	DocumentKey   documentKey              `bson:"documentKey"`
	Ns            namespace                `bson:"ns"`
}
