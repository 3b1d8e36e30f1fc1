package notify

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived tells a user money arrived from another wallet.
	KindTransferReceived = "transfer_received"
	// KindWithdrawalReviewed tells a user their withdrawal was decided.
	KindWithdrawalReviewed = "withdrawal_reviewed"
	// KindTradeReviewed tells a user their giftcard/asset trade was decided.
	KindTradeReviewed = "trade_reviewed"
)

// Message describes a notification payload. Templates and delivery
// channels (mail, push) live outside this service.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
//
// Delivery is fire-and-forget from the caller's perspective: a failed Send
// must never undo a committed financial mutation. Callers log failures at
// Warn rather than swallowing them.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. It stands
// in for a real delivery pipeline in development and tests.
type LoggerNotifier struct {
	logger *slog.Logger
}

func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "destination", message.Destination, "body", message.Body)
	return nil
}
