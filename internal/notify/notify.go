// Package notify decouples notification delivery from the transactions
// that trigger it. Services enqueue messages after commit; a worker
// hands them to the configured Mailer. Delivery is at-least-once and a
// delivery failure never reverts a state transition - it is logged and
// dropped.
package notify

import (
	"context"
	"log"
	"sync"
)

// Message is one notification to a set of recipients.
type Message struct {
	Subject    string
	Body       string
	Recipients []string
}

// Mailer delivers a message. Implementations may send mail, push to a
// queue, or just log; the workflow never depends on the outcome.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes notifications to the process log. The default sink
// until a real delivery collaborator is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	log.Printf("notify: %q to %d recipient(s)", msg.Subject, len(msg.Recipients))
	return nil
}

// Dispatcher queues messages and delivers them asynchronously.
type Dispatcher struct {
	mailer Mailer
	queue  chan Message
	wg     sync.WaitGroup
	once   sync.Once
}

// NewDispatcher starts a dispatcher with a single delivery worker.
func NewDispatcher(mailer Mailer, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	d := &Dispatcher{mailer: mailer, queue: make(chan Message, buffer)}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		if len(msg.Recipients) == 0 {
			continue
		}
		if err := d.mailer.Send(context.Background(), msg); err != nil {
			log.Printf("notify: delivery failed for %q: %v", msg.Subject, err)
		}
	}
}

// Enqueue schedules a message for delivery. Called after the triggering
// transaction has committed.
func (d *Dispatcher) Enqueue(msg Message) {
	d.queue <- msg
}

// Close drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.queue) })
	d.wg.Wait()
}

// Recorder is a Mailer that keeps every message, for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything delivered so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
