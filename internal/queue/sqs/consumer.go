package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Consumer struct {
	SQS      *sqs.Client
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// Handler processes one dispatch job. A nil return deletes the message;
// an error leaves it for SQS redrive / DLQ handling. Delivery failures are
// logged outcomes, not handler errors — only hard failures (storage) should
// bubble up here.
type Handler func(ctx context.Context, job DispatchJob) error

func (c *Consumer) Poll(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.QueueURL,
			MaxNumberOfMessages: c.MaxMessages,
			WaitTimeSeconds:     c.WaitTimeSeconds,
			VisibilityTimeout:   c.VisibilityTimeout,
		})
		if err != nil {
			slog.Error("sqs receive message failed", "err", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		for _, m := range out.Messages {
			if m.Body == nil {
				continue
			}
			var job DispatchJob
			if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
				// bad payload => delete to avoid endless redrive
				c.delete(ctx, m)
				continue
			}

			if err := handler(ctx, job); err == nil {
				c.delete(ctx, m)
			} else {
				slog.Error("sqs handler error", "err", err)
			}
		}
	}
}

// PollConcurrent processes messages with a worker pool. Messages are deleted
// only after the handler completes.
func (c *Consumer) PollConcurrent(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		return c.Poll(ctx, handler)
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				// Always handle poison / invalid messages so they don't loop forever
				if m.Body == nil {
					c.delete(ctx, m)
					continue
				}

				var job DispatchJob
				if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
					c.delete(ctx, m)
					continue
				}

				if err := handler(ctx, job); err == nil {
					c.delete(ctx, m)
				}
				// If err != nil: do NOT delete => SQS redrive/DLQ handles it
			}
		}()
	}

	// Producer: fetch messages and enqueue for workers
	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            &c.QueueURL,
				MaxNumberOfMessages: c.MaxMessages,
				WaitTimeSeconds:     c.WaitTimeSeconds,
				VisibilityTimeout:   c.VisibilityTimeout,
			})
			if err != nil {
				slog.Error("sqs receive message failed", "err", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}

func (c *Consumer) delete(ctx context.Context, m types.Message) {
	_, _ = c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
}
