// internal/queue/queue.go
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gitter-badger/grapevine-go/internal/service"
)

// TopicSendableDispatch carries due Sendable ids to the dispatcher.
const TopicSendableDispatch = "sendable_dispatch"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with retry, used when the server
// runs without a broker.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(topic, handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(topic string, handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Warn().Str("topic", topic).Int("attempt", job.RetryCount).Int("max", job.MaxRetries).
			Err(err).Msg("job failed")

		if job.RetryCount > job.MaxRetries {
			log.Error().Str("topic", topic).Interface("payload", job.Payload).
				Msg("job permanently failed")
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartDispatchSubscriber routes queued Sendable ids into the dispatcher.
// The dispatcher owns the cancellation and already-sent checks; an error
// return here triggers the queue's retry.
func StartDispatchSubscriber(q Queue, dispatcher *service.Dispatcher) {
	err := q.Subscribe(TopicSendableDispatch, func(payload any) error {
		sendableID, ok := payload.(int)
		if !ok {
			log.Warn().Interface("payload", payload).Msg("invalid dispatch payload, expected int")
			return nil // no retry
		}
		return dispatcher.Dispatch(context.Background(), sendableID)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start dispatch subscriber")
	}
}

var _ Queue = (*InMemoryQueue)(nil)
