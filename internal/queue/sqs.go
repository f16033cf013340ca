package queue

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// SQSAPI is the subset of the SQS client used by the source.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSSource long-polls an SQS queue carrying S3 object-created events for the
// brief input prefix. Messages are deleted only after the consumer
// acknowledges them, so an intake that fails mid-flight is redelivered after
// the visibility timeout (at-least-once).
type SQSSource struct {
	client   SQSAPI
	queueURL string
	log      *zap.Logger
	wait     int32
}

// NewSQSSource creates a source over the given queue URL.
func NewSQSSource(client SQSAPI, queueURL string, logger *zap.Logger) *SQSSource {
	return &SQSSource{
		client:   client,
		queueURL: queueURL,
		log:      logger.Named("sqs"),
		wait:     20,
	}
}

func (s *SQSSource) Start(ctx context.Context) (<-chan Notification, error) {
	ch := make(chan Notification, 16)
	go s.loop(ctx, ch)
	s.log.Info("polling for campaign briefs", zap.String("queue", s.queueURL))
	return ch, nil
}

func (s *SQSSource) loop(ctx context.Context, ch chan<- Notification) {
	defer close(ch)
	for {
		if ctx.Err() != nil {
			return
		}
		out, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(s.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     s.wait,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("receive failed", zap.Error(err))
			continue
		}

		for _, msg := range out.Messages {
			key, err := parseS3Event(aws.ToString(msg.Body))
			if err != nil {
				// Not an S3 event; drop it so it does not poison the queue.
				s.log.Warn("dropping unparseable message",
					zap.String("message_id", aws.ToString(msg.MessageId)),
					zap.Error(err))
				s.delete(ctx, msg.ReceiptHandle)
				continue
			}

			receipt := msg.ReceiptHandle
			n := Notification{
				ID:  aws.ToString(msg.MessageId),
				Key: key,
				Ack: func(ctx context.Context) error {
					return s.delete(ctx, receipt)
				},
			}
			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *SQSSource) delete(ctx context.Context, receipt *string) error {
	_, err := s.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(s.queueURL),
		ReceiptHandle: receipt,
	})
	if err != nil {
		s.log.Warn("delete failed", zap.Error(err))
	}
	return err
}
