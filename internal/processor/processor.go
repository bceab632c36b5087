package processor

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goEvent"
	"github.com/i2-open/goSharedSignals/pkg/goSet"
)

var pLog = log.New(os.Stdout, "PROCESSOR:   ", log.Ldate|log.Ltime)

// Outcome is the typed result of processing one verified token. Push and poll
// ingress map it to their respective wire responses.
type Outcome int

const (
	// OutcomeOk means every event in the token was handled
	OutcomeOk Outcome = iota

	// OutcomeParsingError means an event payload could not be converted
	OutcomeParsingError

	// OutcomeVerificationMismatch means a verification event carried a state
	// that does not equal the pending challenge
	OutcomeVerificationMismatch

	// OutcomeProcessingError means the event listener failed
	OutcomeProcessingError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeParsingError:
		return "parsing_error"
	case OutcomeVerificationMismatch:
		return "verification_mismatch"
	case OutcomeProcessingError:
		return "processing_error"
	}
	return "unknown"
}

// ErrorCode maps an outcome to its RFC 8936 setErrs code.
func (o Outcome) ErrorCode() string {
	switch o {
	case OutcomeParsingError:
		return model.ErrorInvalidRequest
	case OutcomeVerificationMismatch:
		return model.ErrorInvalidState
	}
	return model.ErrorProcessingError
}

/*
EventListener receives every non-control-plane event exactly once per token
delivery. Implementations resolve the subject to a local principal and act on
it (session revocation, account disable). A returned error aborts the token.
*/
type EventListener interface {
	OnEvent(ctx context.Context, jti string, event *goEvent.SecurityEvent) error
}

// EventListenerFunc adapts a function to the EventListener interface.
type EventListenerFunc func(ctx context.Context, jti string, event *goEvent.SecurityEvent) error

func (f EventListenerFunc) OnEvent(ctx context.Context, jti string, event *goEvent.SecurityEvent) error {
	return f(ctx, jti, event)
}

// VerificationStore is the slice of the provider the processor needs to
// resolve verification challenges.
type VerificationStore interface {
	GetVerificationState(streamId string) *model.VerificationState
	ClearVerificationState(streamId string)
}

type Processor struct {
	store    VerificationStore
	listener EventListener
}

func NewProcessor(store VerificationStore, listener EventListener) *Processor {
	return &Processor{store: store, listener: listener}
}

/*
Process dispatches each event of a verified token in deterministic order.

A payload conversion failure aborts the whole token. Verification events are
matched against the pending challenge for the receiver's stream: a stream id
mismatch is logged and skipped, a state match clears the challenge and
short-circuits the remaining events, a state mismatch returns
OutcomeVerificationMismatch. Stream-updated events are logged only. Everything
else goes to the listener exactly once; a listener error aborts the token.
*/
func (p *Processor) Process(ctx context.Context, token *goSet.SecurityEventToken, rcv *model.ReceiverRecord) (Outcome, error) {
	events, err := goEvent.ParseEvents(token)
	if err != nil {
		pLog.Printf("Parsing error for token [%s]: %s", token.ID, err.Error())
		return OutcomeParsingError, err
	}

	if len(events) > 1 {
		for _, event := range events {
			if event.IsVerification() {
				pLog.Printf("Warning: token [%s] carries %d events alongside a verification event", token.ID, len(events)-1)
				break
			}
		}
	}

	for _, event := range events {
		switch {
		case event.IsVerification():
			outcome, done := p.processVerification(event, rcv)
			if outcome != OutcomeOk {
				return outcome, fmt.Errorf("verification state mismatch for stream %s", rcv.StreamId)
			}
			if done {
				// Challenge satisfied, remaining events are not forwarded
				return OutcomeOk, nil
			}

		case event.IsStreamUpdated():
			pLog.Printf("Stream updated event for stream [%s]: status %s", rcv.StreamId, event.Status)

		default:
			if err := p.listener.OnEvent(ctx, token.ID, event); err != nil {
				pLog.Printf("Listener error for token [%s] event %s: %s", token.ID, event.Type, err.Error())
				return OutcomeProcessingError, err
			}
		}
	}

	return OutcomeOk, nil
}

/*
processVerification resolves one verification event. Returns the outcome and
whether the pending challenge was satisfied. The stream id comes from the
event's opaque subject (token subject already backfilled at parse time); a
stream id that is not the receiver's is a soft failure so a misdirected
challenge never invalidates a live one.
*/
func (p *Processor) processVerification(event *goEvent.SecurityEvent, rcv *model.ReceiverRecord) (Outcome, bool) {
	streamId := ""
	if event.Subject.IsOpaque() {
		streamId = event.Subject.Id
	}

	if streamId == "" || streamId != rcv.StreamId {
		pLog.Printf("Verification event stream id [%s] does not match receiver stream [%s], ignoring", streamId, rcv.StreamId)
		return OutcomeOk, false
	}

	pending := p.store.GetVerificationState(streamId)
	if pending == nil || pending.State != event.State {
		pLog.Printf("Verification state mismatch for stream [%s]", streamId)
		return OutcomeVerificationMismatch, false
	}

	p.store.ClearVerificationState(streamId)
	pLog.Printf("Stream [%s] verified", streamId)
	return OutcomeOk, true
}
