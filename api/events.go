package api

import (
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"taskflow/domain"
)

// eventClock stamps events with strictly increasing UnixNano times so the
// events of one process sort in the order they were emitted.
type eventClock struct {
	last atomic.Int64
	now  func() time.Time
}

func (c *eventClock) next() int64 {
	for {
		stamp := c.now().UnixNano()
		last := c.last.Load()
		if stamp <= last {
			stamp = last + 1
		}
		if c.last.CompareAndSwap(last, stamp) {
			return stamp
		}
	}
}

var eventTimes = &eventClock{now: time.Now}

// newTaskEvent describes a change to entityID. The stored task, when given,
// travels as the event data.
func newTaskEvent(userID, eventType, entityID string, task *domain.Task) (domain.Event, error) {
	ev := domain.Event{
		ID:       uuid.NewString(),
		UserID:   userID,
		EntityID: entityID,
		Type:     eventType,
		Time:     eventTimes.next(),
	}
	if task == nil {
		return ev, nil
	}
	data, err := sonic.Marshal(task)
	if err != nil {
		return ev, err
	}
	ev.Data = data
	return ev, nil
}

// publish queues a change event when an event sender is configured. An
// event whose data cannot be encoded is still sent, without data.
func publish(d Deps, userID, eventType, entityID string, task *domain.Task) {
	if d.Events == nil {
		return
	}
	ev, err := newTaskEvent(userID, eventType, entityID, task)
	if err != nil {
		d.Logger.WithError(err).Warn("encode event payload")
	}
	d.Events.Send(userID, ev)
}
