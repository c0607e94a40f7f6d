package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/prosegate/prosegate/internal/billing"
)

type Notification struct {
	Type      string `json:"type"`
	AccountID string `json:"account_id,omitempty"`
	Message   string `json:"message"`
	Balance   int64  `json:"balance"`
}

type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// AlertHandler bridges credit monitor alerts onto a notifier. Publish
// failures are logged and dropped; alerting never blocks billing.
func AlertHandler(notifier Notifier) billing.AlertHandler {
	return func(ctx context.Context, alert billing.Alert) {
		n := Notification{
			Type:      string(alert.Level),
			AccountID: alert.AccountID,
			Message:   fmt.Sprintf("account %s credit alert: %s (balance %d)", alert.AccountID, alert.Level, alert.Balance),
			Balance:   alert.Balance,
		}
		if err := notifier.Send(ctx, n); err != nil {
			slog.Error("credit alert publish failed", "error", err, "account_id", alert.AccountID)
		}
	}
}

type SNSNotifier struct {
	client   *sns.Client
	topicArn string
}

func NewSNSNotifier(ctx context.Context, region, topicArn string) (*SNSNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewSNSNotifierWithConfig(cfg, topicArn), nil
}

func NewSNSNotifierWithConfig(cfg aws.Config, topicArn string) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}
}

func (n *SNSNotifier) Send(ctx context.Context, notification Notification) error {
	message, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Message:  aws.String(string(message)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"Type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notification.Type),
			},
		},
	}

	if notification.AccountID != "" {
		input.MessageAttributes["AccountID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(notification.AccountID),
		}
	}

	_, err = n.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}

	slog.Info("notification sent",
		"type", notification.Type,
		"account_id", notification.AccountID,
	)

	return nil
}

type InMemoryNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func NewInMemoryNotifier() *InMemoryNotifier {
	return &InMemoryNotifier{}
}

func (n *InMemoryNotifier) Send(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *InMemoryNotifier) Notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	result := make([]Notification, len(n.notifications))
	copy(result, n.notifications)
	return result
}
