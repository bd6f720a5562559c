package broadcast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	events []Event
	err    error
}

func (o *recordingObserver) Send(event Event) error {
	if o.err != nil {
		return o.err
	}
	o.events = append(o.events, event)
	return nil
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	o := &recordingObserver{}

	hub.Subscribe(o)
	hub.Subscribe(o)
	assert.Equal(t, 1, hub.Len())

	hub.Publish(Event{EpisodeID: 1, Progress: 50, Stage: "processing"})
	assert.Len(t, o.events, 1)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	o := &recordingObserver{}

	hub.Subscribe(o)
	hub.Unsubscribe(o)
	hub.Unsubscribe(o)
	assert.Equal(t, 0, hub.Len())

	hub.Publish(Event{EpisodeID: 1, Progress: 10, Stage: "downloading"})
	assert.Empty(t, o.events)
}

func TestPublishDropsOnlyFailingObserver(t *testing.T) {
	hub := NewHub()
	healthy := &recordingObserver{}
	broken := &recordingObserver{err: errors.New("connection reset")}

	hub.Subscribe(healthy)
	hub.Subscribe(broken)

	event := Event{EpisodeID: 7, Progress: 100, Stage: "completed"}
	hub.Publish(event)

	assert.Equal(t, []Event{event}, healthy.events)
	assert.Equal(t, 1, hub.Len())

	// The broken observer is gone; the healthy one keeps receiving.
	hub.Publish(event)
	assert.Len(t, healthy.events, 2)
}

func TestLateSubscriberGetsNoBacklog(t *testing.T) {
	hub := NewHub()
	hub.Publish(Event{EpisodeID: 1, Progress: 100, Stage: "completed"})

	late := &recordingObserver{}
	hub.Subscribe(late)
	assert.Empty(t, late.events)
}
