package buffer

import (
	"log"
	"sync"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
)

type EventBuf interface {
	SubmitEvent(jti string)
	IsClosed() bool
	Close()
}

/*
EventPollBuffer holds the ordered pending jtis for one poll stream. An entry
stays in the buffer until acknowledged or failed; GetEvents returns pending
entries without removing them so an unacknowledged event is redelivered on the
next poll (at-least-once). Ack and Fail are idempotent.
*/
type EventPollBuffer struct {
	events           []string
	present          map[string]bool
	mutex            sync.Mutex
	closed           bool
	triggerCondition *sync.Cond
}

// CreateEventPollBuffer queues events for retrieval via GetEvents. initialJtis
// restores entries pending from a prior process run.
func CreateEventPollBuffer(initialJtis []string) *EventPollBuffer {
	buffer := &EventPollBuffer{
		events:           []string{},
		present:          map[string]bool{},
		triggerCondition: sync.NewCond(new(sync.Mutex)),
	}
	for _, jti := range initialJtis {
		buffer.SubmitEvent(jti)
	}
	return buffer
}

func (b *EventPollBuffer) Cnt() float64 {
	defer b.mutex.Unlock()
	b.mutex.Lock()
	return float64(len(b.events))
}

func (b *EventPollBuffer) SubmitEvent(jti string) {
	if b.IsClosed() {
		return
	}
	b.mutex.Lock()
	if !b.present[jti] {
		b.present[jti] = true
		b.events = append(b.events, jti)
	}
	b.mutex.Unlock()

	b.triggerCondition.L.Lock()
	b.triggerCondition.Broadcast()
	b.triggerCondition.L.Unlock()
}

// Ack removes an acknowledged jti. Acknowledging an unknown or already
// acknowledged jti is a no-op.
func (b *EventPollBuffer) Ack(jti string) {
	b.remove(jti)
}

// Fail removes a jti reported through setErrs. The audit record is the
// provider's concern; the buffer only stops delivering it.
func (b *EventPollBuffer) Fail(jti string) {
	b.remove(jti)
}

func (b *EventPollBuffer) remove(jti string) {
	defer b.mutex.Unlock()
	b.mutex.Lock()
	if !b.present[jti] {
		return
	}
	delete(b.present, jti)
	for i, pending := range b.events {
		if pending == jti {
			b.events = append(b.events[:i], b.events[i+1:]...)
			return
		}
	}
}

func (b *EventPollBuffer) IsClosed() bool {
	defer b.mutex.Unlock()
	b.mutex.Lock()
	return b.closed
}

func (b *EventPollBuffer) Close() {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return
	}
	b.closed = true
	pending := len(b.events)
	b.mutex.Unlock()

	if pending > 0 {
		log.Printf("Poll buffer closed with %d undelivered events (recovered on restart)", pending)
	}
	// Release any long-poll waiters
	b.triggerCondition.L.Lock()
	b.triggerCondition.Broadcast()
	b.triggerCondition.L.Unlock()
}

func (b *EventPollBuffer) waitForEventTrigger(result chan string) {
	b.triggerCondition.L.Lock()
	b.triggerCondition.Wait()
	b.triggerCondition.L.Unlock()
	result <- "done"
}

func (b *EventPollBuffer) waitForEventWithTimeout(waitTime time.Duration) {
	result := make(chan string, 1)
	go b.waitForEventTrigger(result)
	select {
	case <-time.After(waitTime):
	case <-result:
	}
}

/*
GetEvents returns up to MaxEvents pending jtis in arrival order, leaving them
pending until acknowledged. When the buffer is empty and ReturnImmediately is
false the call blocks until an event arrives or the timeout expires.
*/
func (b *EventPollBuffer) GetEvents(params model.PollParameters) (*[]string, bool) {
	b.mutex.Lock()
	empty := len(b.events) == 0
	closed := b.closed
	b.mutex.Unlock()

	if empty && !closed && !params.ReturnImmediately {
		timeout := time.Duration(params.TimeoutSecs) * time.Second
		if timeout == 0 {
			timeout = 900 * time.Second
		}
		b.waitForEventWithTimeout(timeout)
	}

	more := false
	var values []string
	defer b.mutex.Unlock()
	b.mutex.Lock()
	eventsAvailable := len(b.events)
	if eventsAvailable == 0 {
		return nil, false
	}
	if params.MaxEvents > 0 && eventsAvailable > params.MaxEvents {
		more = true
		values = append(values, b.events[:params.MaxEvents]...)
	} else {
		values = append(values, b.events...)
	}
	return &values, more
}

type EventPushBuffer struct {
	in   chan interface{}
	Out  chan interface{}
	done chan struct{}

	events      []interface{}
	eventsMutex sync.Mutex
	closeOnce   sync.Once
}

// CreateEventPushBuffer creates an input and output channel that allows events to be queued up (using in channel) for a reader
// that is sending events one at a time using the Out channel
func CreateEventPushBuffer(initialJtis []string) *EventPushBuffer {
	buffer := &EventPushBuffer{
		in:     make(chan interface{}),
		Out:    make(chan interface{}),
		done:   make(chan struct{}),
		events: []interface{}{},
	}

	if len(initialJtis) > 0 {
		buffer.addEvents(initialJtis)
	}

	go buffer.pump()
	return buffer
}

// pump moves queued jtis to the Out channel one at a time. All access to the
// pending slice goes through eventsMutex; the channels themselves need none.
func (b *EventPushBuffer) pump() {
	in := b.in
	done := b.done
	for {
		b.eventsMutex.Lock()
		pending := len(b.events) > 0
		var next interface{}
		if pending {
			next = b.events[0]
		}
		b.eventsMutex.Unlock()

		if !pending && in == nil {
			break
		}
		var outCh chan interface{}
		if pending {
			outCh = b.Out
		}
		select {
		case v := <-in:
			b.eventsMutex.Lock()
			b.events = append(b.events, v)
			b.eventsMutex.Unlock()
		case <-done:
			// Stop accepting input but deliver what is pending
			in = nil
			done = nil
		case outCh <- next:
			b.eventsMutex.Lock()
			b.events = b.events[1:]
			b.eventsMutex.Unlock()
		}
	}
	close(b.Out)
	log.Println("Stream buffer closing")
}

func (b *EventPushBuffer) Cnt() float64 {
	defer b.eventsMutex.Unlock()
	b.eventsMutex.Lock()
	return float64(len(b.events))
}

func (b *EventPushBuffer) addEvents(jtis []string) {
	defer b.eventsMutex.Unlock()
	b.eventsMutex.Lock()
	for _, jti := range jtis {
		b.events = append(b.events, jti)
	}
}

// SubmitEvent queues a jti for delivery. An event submitted after Close is
// dropped; the provider queue recovers it on restart.
func (b *EventPushBuffer) SubmitEvent(jti string) {
	select {
	case b.in <- jti:
	case <-b.done:
	}
}

func (b *EventPushBuffer) IsClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *EventPushBuffer) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}
