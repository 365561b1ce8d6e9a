package fixtures

import (
	"context"
	"sync"

	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
)

// QueueRecorder is a command queue that records the parcels published to it
// instead of delivering them.
type QueueRecorder struct {
	m       sync.Mutex
	parcels []parcel.Parcel

	// PublishFunc, if non-nil, is called after recording each parcel.
	PublishFunc func(context.Context, parcel.Parcel) error
}

// Publish records p.
func (q *QueueRecorder) Publish(ctx context.Context, p parcel.Parcel) error {
	q.m.Lock()
	q.parcels = append(q.parcels, p)
	q.m.Unlock()

	if q.PublishFunc != nil {
		return q.PublishFunc(ctx, p)
	}

	return nil
}

// Parcels returns the recorded parcels in publication order.
func (q *QueueRecorder) Parcels() []parcel.Parcel {
	q.m.Lock()
	defer q.m.Unlock()

	return append([]parcel.Parcel(nil), q.parcels...)
}

// Messages returns the messages of the recorded parcels in publication
// order.
func (q *QueueRecorder) Messages() []message.Message {
	q.m.Lock()
	defer q.m.Unlock()

	messages := make([]message.Message, len(q.parcels))
	for i, p := range q.parcels {
		messages[i] = p.Message
	}

	return messages
}
