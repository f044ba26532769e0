package changes

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/clubsite/internal/records"
)

const subscriptionBuffer = 16

// Dispatcher hands notices to the open change streams of each gallery table.
// A stream whose buffer is full misses the notice; readers only need to know
// that a reload is due.
type Dispatcher struct {
	mu      sync.RWMutex
	streams map[records.Table]map[*subscription]struct{}
}

type subscription struct {
	notices chan Notice
	once    sync.Once
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{streams: make(map[records.Table]map[*subscription]struct{})}
}

// Subscribe opens a stream of notices for table. The stream is closed when ctx
// ends or the returned cancel func runs, whichever is first.
func (d *Dispatcher) Subscribe(ctx context.Context, table records.Table) (<-chan Notice, func()) {
	if table == "" {
		closed := make(chan Notice)
		close(closed)
		return closed, func() {}
	}

	sub := &subscription{notices: make(chan Notice, subscriptionBuffer)}
	d.mu.Lock()
	if d.streams[table] == nil {
		d.streams[table] = make(map[*subscription]struct{})
	}
	d.streams[table][sub] = struct{}{}
	d.mu.Unlock()

	cancel := func() { d.drop(table, sub) }
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return sub.notices, cancel
}

// Publish is the Sink wired into the Hub.
func (d *Dispatcher) Publish(notice Notice) {
	if notice.Table == "" || notice.Kind == "" {
		return
	}
	// Sends happen under the read lock so drop cannot close a channel mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	for sub := range d.streams[notice.Table] {
		select {
		case sub.notices <- notice:
		default:
		}
	}
}

func (d *Dispatcher) drop(table records.Table, sub *subscription) {
	sub.once.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.streams[table], sub)
		if len(d.streams[table]) == 0 {
			delete(d.streams, table)
		}
		close(sub.notices)
	})
}
