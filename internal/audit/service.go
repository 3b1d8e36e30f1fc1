package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to customers.
// - Callers should treat audit logging as best-effort; a failed append
//   must never undo a committed financial mutation.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ActorID == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogEntryDecision records an admin decision on a ledger entry.
func (s *Service) LogEntryDecision(ctx context.Context, actorID, actorRole, ip, entryID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeEntryDecision,
		ActorID:   actorID,
		ActorRole: actorRole,
		IPAddress: ip,
		EntryID:   entryID,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogTradeDecision records an admin decision on a trade.
func (s *Service) LogTradeDecision(ctx context.Context, actorID, actorRole, ip, tradeID, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeTradeDecision,
		ActorID:   actorID,
		ActorRole: actorRole,
		IPAddress: ip,
		TradeID:   tradeID,
		Message:   message,
		Metadata:  metadata,
	})
}

// LogReferralPaid records settlement of a referral credit.
func (s *Service) LogReferralPaid(ctx context.Context, actorID, actorRole, ip, referralID, metadata string) error {
	return s.Append(ctx, Event{
		Type:       EventTypeReferralPaid,
		ActorID:    actorID,
		ActorRole:  actorRole,
		IPAddress:  ip,
		ReferralID: referralID,
		Message:    "referral credit settled",
		Metadata:   metadata,
	})
}
