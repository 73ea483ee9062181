package crawler

import "context"

// Delivery is one dequeued message. Ack confirms processing; Nack returns the
// message to the queue for redelivery.
type Delivery struct {
	ID   string
	Body []byte

	ack  func(context.Context) error
	nack func(context.Context) error
}

// NewDelivery builds a Delivery with backend-specific acknowledgement hooks.
// Nil hooks are treated as no-ops.
func NewDelivery(id string, body []byte, ack, nack func(context.Context) error) Delivery {
	return Delivery{ID: id, Body: body, ack: ack, nack: nack}
}

// Ack confirms the message.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Nack releases the message for redelivery.
func (d Delivery) Nack(ctx context.Context) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(ctx)
}
