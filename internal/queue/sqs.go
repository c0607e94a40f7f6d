package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/prosegate/prosegate/internal/billing"
	"github.com/prosegate/prosegate/internal/domain"
)

// SQSRetryQueue carries usage entries whose ledger write failed. It
// implements both billing.RetryQueue and billing.RetrySource so the
// finalizer and the retry worker share one queue.
type SQSRetryQueue struct {
	client   *sqs.Client
	queueURL string
}

var (
	_ billing.RetryQueue  = (*SQSRetryQueue)(nil)
	_ billing.RetrySource = (*SQSRetryQueue)(nil)
)

func NewSQSRetryQueue(ctx context.Context, region, queueURL string) (*SQSRetryQueue, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewSQSRetryQueueWithConfig(cfg, queueURL), nil
}

func NewSQSRetryQueueWithConfig(cfg aws.Config, queueURL string) *SQSRetryQueue {
	return &SQSRetryQueue{
		client:   sqs.NewFromConfig(cfg),
		queueURL: queueURL,
	}
}

func (q *SQSRetryQueue) Enqueue(ctx context.Context, entry domain.UsageEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal usage entry: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AccountID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.AccountID),
			},
			"RequestID": {
				DataType:    aws.String("String"),
				StringValue: aws.String(entry.RequestID),
			},
		},
	}

	_, err = q.client.SendMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (q *SQSRetryQueue) Receive(ctx context.Context, maxEntries int) ([]billing.QueuedEntry, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(q.queueURL),
		MaxNumberOfMessages:   int32(maxEntries),
		WaitTimeSeconds:       20,
		MessageAttributeNames: []string{"All"},
	}

	result, err := q.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	entries := make([]billing.QueuedEntry, 0, len(result.Messages))
	for _, msg := range result.Messages {
		var entry domain.UsageEntry
		if err := json.Unmarshal([]byte(*msg.Body), &entry); err != nil {
			slog.Warn("failed to unmarshal retry entry", "error", err)
			continue
		}
		entries = append(entries, billing.QueuedEntry{
			Entry:   entry,
			Receipt: aws.ToString(msg.ReceiptHandle),
		})
	}

	return entries, nil
}

func (q *SQSRetryQueue) Delete(ctx context.Context, receipt string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receipt),
	}

	_, err := q.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	return nil
}
