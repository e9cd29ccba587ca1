package queue

import (
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrAlreadySettled is returned when a delivery is acked or nacked twice
var ErrAlreadySettled = errors.New("delivery already settled")

// acknowledger is the part of amqp.Delivery that settles a message
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Message is one consumed delivery with its decoded job. It settles at most once.
type Message struct {
	job      *Job
	delivery acknowledger

	once sync.Once
}

var _ MessageInterface = (*Message)(nil)

func newMessage(job *Job, d amqp.Delivery) *Message {
	return &Message{job: job, delivery: d}
}

// Ack removes the delivery from the queue
func (m *Message) Ack() error {
	return m.settle(func() error { return m.delivery.Ack(false) })
}

// Nack rejects the delivery. Without requeue it is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	return m.settle(func() error { return m.delivery.Nack(false, requeue) })
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.job
}

func (m *Message) settle(fn func() error) error {
	err := ErrAlreadySettled
	m.once.Do(func() { err = fn() })
	return err
}
