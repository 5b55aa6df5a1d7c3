package sqsqueue

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type Producer struct {
	SQS      *sqs.Client
	QueueURL string
}

// DispatchJob is the queue payload business-event schedulers produce. Token
// values arrive already resolved; this service never computes due dates or
// amounts.
type DispatchJob struct {
	EventType     string            `json:"eventType"`
	Recipient     string            `json:"recipient"`
	TokenValues   map[string]string `json:"tokenValues"`
	CorrelationID string            `json:"correlationId,omitempty"`
	// BusinessRef identifies the business record (sale id, check id) for
	// the duplicate-reminder dedupe key.
	BusinessRef string `json:"businessRef,omitempty"`
}

func (p *Producer) Enqueue(ctx context.Context, job DispatchJob) error {
	in, err := buildSendInput(p.QueueURL, job)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

func buildSendInput(queueURL string, job DispatchJob) (*sqs.SendMessageInput, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    str(queueURL),
		MessageBody: str(string(body)),
	}
	// FIFO queues keep per-recipient ordering and drop scheduler double
	// sends that share a correlation id.
	if strings.HasSuffix(queueURL, ".fifo") {
		in.MessageGroupId = str(job.Recipient)
		if job.CorrelationID != "" {
			in.MessageDeduplicationId = str(job.CorrelationID)
		}
	}
	return in, nil
}

func str(s string) *string { return &s }
