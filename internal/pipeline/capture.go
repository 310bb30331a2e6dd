package pipeline

import (
	"context"
	"time"
)

// CaptureDispatcher records the reply instead of sending it anywhere. Used by
// the REST surface (which returns the payload in the HTTP response) and by
// tests. One instance per run; not safe for concurrent use.
type CaptureDispatcher struct {
	Reply   Reply
	Called  bool
	Outcome DeliveryOutcome
}

// Deliver records the reply and reports success.
func (c *CaptureDispatcher) Deliver(_ context.Context, destination string, reply Reply) DeliveryOutcome {
	c.Reply = reply
	c.Called = true
	c.Outcome = DeliveryOutcome{
		Delivered:      true,
		Destination:    destination,
		PayloadPreview: reply.Preview(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}
	return c.Outcome
}
