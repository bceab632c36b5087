package buffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/i2-open/goSharedSignals/internal/model"
	"github.com/i2-open/goSharedSignals/pkg/goSet"

	"github.com/stretchr/testify/assert"
)

func TestCreateEventPushBuffer(t *testing.T) {
	buffer := CreateEventPushBuffer([]string{})
	lastVal := -1
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		for v := range buffer.Out {
			vi := v.(string)
			var num int
			fmt.Sscanf(vi, "jti-%d", &num)
			if lastVal+1 != num {
				t.Errorf("Unexpected value; expected %d, got %d", lastVal+1, num)
			}
			lastVal = num
		}
		wg.Done()
		fmt.Println("Finished reading")
	}()

	for i := 0; i < 100; i++ {
		buffer.SubmitEvent(fmt.Sprintf("jti-%d", i))
	}
	buffer.Close()
	fmt.Println("Finished writing")
	wg.Wait()
	if lastVal != 99 {
		t.Errorf("Didn't get all values. Last received was %d", lastVal)
	}
}

func TestPushBufferConcurrentSubmitClose(t *testing.T) {
	buffer := CreateEventPushBuffer([]string{"jti-seed"})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				buffer.SubmitEvent(fmt.Sprintf("jti-%d-%d", w, i))
				_ = buffer.Cnt()
				_ = buffer.IsClosed()
			}
		}(w)
	}

	received := 0
	done := make(chan struct{})
	go func() {
		for range buffer.Out {
			received++
		}
		close(done)
	}()

	wg.Wait()
	buffer.Close()
	<-done

	assert.Equal(t, 101, received, "every submitted event delivered before Out closes")
	assert.True(t, buffer.IsClosed())

	// Submitting after close drops the event instead of panicking
	buffer.SubmitEvent("jti-late")
}

func TestPollBufferPendingUntilAck(t *testing.T) {
	buffer := CreateEventPollBuffer(nil)

	jti1 := goSet.GenerateJti()
	jti2 := goSet.GenerateJti()
	buffer.SubmitEvent(jti1)
	buffer.SubmitEvent(jti2)

	jtis, more := buffer.GetEvents(model.PollParameters{ReturnImmediately: true, MaxEvents: 10})
	assert.NotNil(t, jtis)
	assert.False(t, more)
	assert.Equal(t, []string{jti1, jti2}, *jtis, "arrival order preserved")

	// Unacknowledged events are returned again on the next poll
	jtis, _ = buffer.GetEvents(model.PollParameters{ReturnImmediately: true, MaxEvents: 10})
	assert.NotNil(t, jtis)
	assert.Equal(t, []string{jti1, jti2}, *jtis, "unacked events redelivered")

	buffer.Ack(jti1)
	jtis, _ = buffer.GetEvents(model.PollParameters{ReturnImmediately: true, MaxEvents: 10})
	assert.NotNil(t, jtis)
	assert.Equal(t, []string{jti2}, *jtis, "acked event never returned again")

	// Acking twice or acking an unknown jti is a no-op
	buffer.Ack(jti1)
	buffer.Ack("no-such-jti")
	assert.Equal(t, float64(1), buffer.Cnt())

	buffer.Fail(jti2)
	jtis, _ = buffer.GetEvents(model.PollParameters{ReturnImmediately: true, MaxEvents: 10})
	assert.Nil(t, jtis, "failed event removed from delivery")
}

func TestPollBufferMaxEvents(t *testing.T) {
	buffer := CreateEventPollBuffer(nil)
	for i := 0; i < 5; i++ {
		buffer.SubmitEvent(fmt.Sprintf("jti-%d", i))
	}

	jtis, more := buffer.GetEvents(model.PollParameters{ReturnImmediately: true, MaxEvents: 2})
	assert.NotNil(t, jtis)
	assert.Len(t, *jtis, 2)
	assert.True(t, more, "more events available")

	// Resubmitting a pending jti does not duplicate it
	buffer.SubmitEvent("jti-0")
	assert.Equal(t, float64(5), buffer.Cnt())
}

func TestPollBufferLongPoll(t *testing.T) {
	buffer := CreateEventPollBuffer(nil)

	start := time.Now()
	go func() {
		time.Sleep(100 * time.Millisecond)
		buffer.SubmitEvent("jti-wake")
	}()

	jtis, _ := buffer.GetEvents(model.PollParameters{ReturnImmediately: false, TimeoutSecs: 5})
	assert.NotNil(t, jtis, "long poll woken by submit")
	assert.Equal(t, []string{"jti-wake"}, *jtis)
	assert.Less(t, time.Since(start), 5*time.Second, "returned before timeout")

	// Timeout path returns nil
	buffer.Ack("jti-wake")
	jtis, _ = buffer.GetEvents(model.PollParameters{ReturnImmediately: false, TimeoutSecs: 1})
	assert.Nil(t, jtis)
}

func TestPollBufferRestoresInitial(t *testing.T) {
	buffer := CreateEventPollBuffer([]string{"jti-a", "jti-b"})
	jtis, _ := buffer.GetEvents(model.PollParameters{ReturnImmediately: true})
	assert.NotNil(t, jtis)
	assert.Equal(t, []string{"jti-a", "jti-b"}, *jtis)
}
