package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"squadpay/internal/core"
	"squadpay/internal/storage"
)

// PaymentService is the reconciliation engine's operation surface.
// Every mutating operation is serialized per aggregate and validates
// before writing, so a failed call never leaves partial state behind.
type PaymentService struct {
	storage   *storage.SQLiteRepository
	publisher RequestPublisher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// RequestPublisher hands payment-request messages to the messaging
// collaborator. Delivery itself happens out of process.
type RequestPublisher interface {
	PublishPaymentRequest(ctx context.Context, aggregateID, memberID string) error
}

// NewMemberInput seeds one member at aggregate creation, e.g. from the
// availability subsystem's confirmed-player list.
type NewMemberInput struct {
	DisplayName string
	Contact     string
}

func NewPaymentService(storage *storage.SQLiteRepository, publisher RequestPublisher) *PaymentService {
	return &PaymentService{
		storage:   storage,
		publisher: publisher,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockFor returns the mutex serializing writers of one aggregate.
func (s *PaymentService) lockFor(aggregateID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[aggregateID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[aggregateID] = l
	}
	return l
}

// CreatePayment builds a new aggregate for a match expense, seeds the
// initial members as flexible and runs the split once.
func (s *PaymentService) CreatePayment(ctx context.Context, matchRef string, totalPaise int64, initial []NewMemberInput) (*core.Aggregate, error) {
	if totalPaise <= 0 {
		return nil, core.ErrInvalidAmount
	}

	agg := &core.Aggregate{
		ID:         uuid.NewString(),
		MatchRef:   strings.TrimSpace(matchRef),
		TotalPaise: totalPaise,
		CreatedAt:  time.Now(),
	}
	for _, in := range initial {
		agg.Members = append(agg.Members, core.Member{
			ID:          uuid.NewString(),
			DisplayName: strings.TrimSpace(in.DisplayName),
			Contact:     strings.TrimSpace(in.Contact),
		})
	}
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	if err := agg.Rebalance(); err != nil {
		return nil, err
	}
	if err := s.storage.CreateAggregate(ctx, agg); err != nil {
		return nil, fmt.Errorf("create aggregate: %w", err)
	}
	return agg, nil
}

// DeletePayment removes the aggregate and all its members. Irreversible.
func (s *PaymentService) DeletePayment(ctx context.Context, aggregateID string) error {
	lock := s.lockFor(aggregateID)
	lock.Lock()
	defer lock.Unlock()

	return s.storage.DeleteAggregate(ctx, aggregateID)
}

// AddMember appends a flexible member and rebalances the split.
func (s *PaymentService) AddMember(ctx context.Context, aggregateID, displayName, contact string) (*core.Aggregate, error) {
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		member := core.Member{
			ID:          uuid.NewString(),
			DisplayName: strings.TrimSpace(displayName),
			Contact:     strings.TrimSpace(contact),
		}
		if err := member.Validate(); err != nil {
			return nil, nil, err
		}
		if agg.HasContact(member.Contact) {
			return nil, nil, core.ErrDuplicateMember
		}
		agg.Members = append(agg.Members, member)
		return nil, nil, agg.Rebalance()
	})
}

// RemoveMember drops a member and rebalances the rest. Recorded
// payments are not retroactively invalidated; the member simply leaves
// the share computation.
func (s *PaymentService) RemoveMember(ctx context.Context, aggregateID, memberID string) (*core.Aggregate, error) {
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		idx := -1
		for i := range agg.Members {
			if agg.Members[i].ID == memberID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, core.ErrNotFound
		}
		agg.Members = append(agg.Members[:idx], agg.Members[idx+1:]...)
		return nil, []string{memberID}, agg.Rebalance()
	})
}

// AdjustMemberAmount sets or clears a member's fixed share and
// redistributes the remainder across the other flexible members.
func (s *PaymentService) AdjustMemberAmount(ctx context.Context, aggregateID, memberID string, share core.Share) (*core.Aggregate, error) {
	if err := share.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		member := agg.MemberByID(memberID)
		if member == nil {
			return nil, nil, core.ErrNotFound
		}
		member.Share = share
		return nil, nil, agg.Rebalance()
	})
}

// SetTotalAmount edits the declared total and rebalances. The total is
// never derived from members.
func (s *PaymentService) SetTotalAmount(ctx context.Context, aggregateID string, totalPaise int64) (*core.Aggregate, error) {
	if totalPaise <= 0 {
		return nil, core.ErrInvalidAmount
	}
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		agg.TotalPaise = totalPaise
		return nil, nil, agg.Rebalance()
	})
}

// RecordPayment adds a payment to a member's balance and stores the
// event. Overpayment is allowed and surfaces as a refund owed to the
// member. Shares are never recomputed here.
func (s *PaymentService) RecordPayment(ctx context.Context, aggregateID, memberID string, amountPaise int64, method core.PaymentMethod, note string, paidAt time.Time) (*core.Aggregate, error) {
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	event := core.PaymentEvent{
		AggregateID: aggregateID,
		MemberID:    memberID,
		AmountPaise: amountPaise,
		Method:      method,
		Note:        strings.TrimSpace(note),
		PaidAt:      paidAt,
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	agg, err := s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		member := agg.MemberByID(memberID)
		if member == nil {
			return nil, nil, core.ErrNotFound
		}
		member.PaidPaise += amountPaise
		return []core.PaymentEvent{event}, nil, nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Payment recorded",
		"aggregate_id", aggregateID,
		"member_id", memberID,
		"amount_paise", amountPaise,
		"method", string(method))
	return agg, nil
}

// SettleAcross nets one member's overpayment against another's due.
func (s *PaymentService) SettleAcross(ctx context.Context, aggregateID, fromMemberID, toMemberID string, amountPaise int64) (*core.Aggregate, error) {
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		return nil, nil, agg.ApplySettlement(fromMemberID, toMemberID, amountPaise)
	})
}

// MarkUnpaid fully rolls back a member's recorded payments, for
// correcting data-entry errors. Not a partial refund.
func (s *PaymentService) MarkUnpaid(ctx context.Context, aggregateID, memberID string) (*core.Aggregate, error) {
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		member := agg.MemberByID(memberID)
		if member == nil {
			return nil, nil, core.ErrNotFound
		}
		member.PaidPaise = 0
		member.SettledPaise = 0
		return nil, []string{memberID}, nil
	})
}

// AttachScreenshot stores the opaque reference handed back by the
// screenshot storage collaborator.
func (s *PaymentService) AttachScreenshot(ctx context.Context, aggregateID, memberID, ref string) (*core.Aggregate, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty screenshot reference", core.ErrInvalidInput)
	}
	return s.mutate(ctx, aggregateID, func(agg *core.Aggregate) ([]core.PaymentEvent, []string, error) {
		member := agg.MemberByID(memberID)
		if member == nil {
			return nil, nil, core.ErrNotFound
		}
		now := time.Now()
		member.ScreenshotRef = ref
		member.ScreenshotReceivedAt = &now
		return nil, nil, nil
	})
}

// GetAggregate reads the latest committed snapshot. No lock: derived
// fields are computed from raw amounts on the way out.
func (s *PaymentService) GetAggregate(ctx context.Context, aggregateID string) (*core.Aggregate, error) {
	return s.storage.GetAggregate(ctx, aggregateID)
}

// ListAggregatesByMatch returns all expense records for one match.
func (s *PaymentService) ListAggregatesByMatch(ctx context.Context, matchRef string) ([]*core.Aggregate, error) {
	return s.storage.ListAggregatesByMatch(ctx, matchRef)
}

// ListPaymentEvents returns a member's payment history.
func (s *PaymentService) ListPaymentEvents(ctx context.Context, memberID string) ([]core.PaymentEvent, error) {
	return s.storage.ListPaymentEvents(ctx, memberID)
}

// mutate runs one serialized read-modify-write cycle over an aggregate.
// The mutation fn works on a private copy, so any validation error
// leaves committed state untouched; storage's version check turns a
// stale snapshot into core.ErrConflict for the caller to retry.
func (s *PaymentService) mutate(ctx context.Context, aggregateID string, fn func(*core.Aggregate) ([]core.PaymentEvent, []string, error)) (*core.Aggregate, error) {
	lock := s.lockFor(aggregateID)
	lock.Lock()
	defer lock.Unlock()

	agg, err := s.storage.GetAggregate(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	events, purge, err := fn(agg)
	if err != nil {
		return nil, err
	}
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.SaveAggregate(ctx, agg, events, purge); err != nil {
		return nil, err
	}
	return agg, nil
}

// Close closes the underlying storage.
func (s *PaymentService) Close() error {
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			return fmt.Errorf("close payment service: %w", err)
		}
	}
	return nil
}
