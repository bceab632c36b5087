package model

import (
	"time"

	"github.com/i2-open/goSharedSignals/pkg/goSet"
)

// EventRecord is stored in the provider event collection
type EventRecord struct {
	Jti   string                   `json:"jti" bson:"jti"`
	Event goSet.SecurityEventToken `json:"event"`

	// Raw holds the original compact token when the event arrived signed
	Raw   string   `json:"raw,omitempty" bson:"raw,omitempty"`
	Types []string `json:"types,omitempty" bson:"types,omitempty"`

	SortTime time.Time `json:"sortTime" bson:"sort_time"`
}

/*
DeliveryQueueEntry tracks one poll-queued event for one stream. An entry
leaves the active queue only on explicit acknowledgment; a failed mark removes
it from delivery while keeping the audit record.
*/
type DeliveryQueueEntry struct {
	StreamId     string    `json:"sid" bson:"sid"`
	Jti          string    `json:"jti" bson:"jti"`
	EnqueuedAt   time.Time `json:"enqueuedAt" bson:"enqueued_at"`
	Acknowledged bool      `json:"acknowledged" bson:"acknowledged"`
	AckedAt      time.Time `json:"ackedAt,omitempty" bson:"acked_at,omitempty"`
	Failed       bool      `json:"failed" bson:"failed"`
	ErrCode      string    `json:"errCode,omitempty" bson:"err_code,omitempty"`
	ErrDetail    string    `json:"errDetail,omitempty" bson:"err_detail,omitempty"`
}
