package reminder

import (
	"context"
	"time"
)

// queueClient is the transport under the reminder queue. Implementations
// must support delayed delivery, which the retry policy relies on.
type queueClient interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}
