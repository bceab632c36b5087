package mock_provider

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type JwkKeyRec struct {
	Id          primitive.ObjectID `json:"id" bson:"_id"`
	Iss         string             `json:"iss,omitempty" bson:"iss"`
	ProjectId   string             `bson:"project_id" json:"projectId,omitempty"`
	KeyBytes    []byte             `json:"keyBytes" bson:"key_bytes"`
	PubKeyBytes []byte             `json:"pubJwks" bson:"pub_jwks"`
}
