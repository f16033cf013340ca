// Package queue delivers "new brief available" notifications to the intake
// stage. Delivery is at-least-once: a notification may be observed more than
// once, and consumers are expected to tolerate redelivery.
//
// Local mode watches the input directory with fsnotify; cloud mode long-polls
// an SQS queue carrying S3 event notifications.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Notification announces that a brief document is available at Key.
type Notification struct {
	// ID correlates log lines across redeliveries of the same message.
	ID string

	// Key is the storage key of the brief document.
	Key string

	// Ack marks the notification as handled. Nil for sources that have no
	// acknowledgment (notifications from those are simply not redelivered).
	Ack func(ctx context.Context) error
}

// Source produces notifications until the context is cancelled. The returned
// channel is closed when the source stops.
type Source interface {
	Start(ctx context.Context) (<-chan Notification, error)
}

// s3Event is the S3 event-notification envelope delivered through SQS.
type s3Event struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// parseS3Event extracts the object key from an S3 event-notification body.
func parseS3Event(body string) (string, error) {
	var ev s3Event
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return "", fmt.Errorf("queue: parse s3 event: %w", err)
	}
	if len(ev.Records) == 0 {
		return "", fmt.Errorf("queue: s3 event has no records")
	}
	return ev.Records[0].S3.Object.Key, nil
}
