package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MethodUPI  PaymentMethod = "upi"
	MethodCash PaymentMethod = "cash"
	MethodBank PaymentMethod = "bank"

	StatusPending  MemberStatus = "pending"
	StatusPartial  MemberStatus = "partial"
	StatusPaid     MemberStatus = "paid"
	StatusOverpaid MemberStatus = "overpaid"

	AggregatePending   AggregateStatus = "pending"
	AggregatePartial   AggregateStatus = "partial"
	AggregateCompleted AggregateStatus = "completed"
)

type (
	PaymentMethod string

	// MemberStatus is the collection state of a single member,
	// always derived from raw amounts and never stored.
	MemberStatus string

	// AggregateStatus is the collection state of a whole expense.
	AggregateStatus string

	Money struct {
		Paise int64
	}

	// Share is a member's split assignment: either automatic (the split
	// calculator divides the remainder pool) or fixed at an explicit
	// amount. A fixed amount of zero means the member plays for free.
	Share struct {
		fixed bool
		paise int64
	}

	// Member is one squad participant's share-and-payment record
	// within an aggregate.
	Member struct {
		ID          string
		DisplayName string
		Contact     string
		Share       Share

		// CalculatedPaise is the fair share produced by the last split
		// run. Meaningful only while Share is automatic.
		CalculatedPaise int64

		// PaidPaise is the cumulative amount recorded as paid.
		PaidPaise int64

		// SettledPaise is the part of PaidPaise that was forwarded to
		// cover another member's shortfall and therefore never reached
		// the organizer.
		SettledPaise int64

		MessageSentAt        *time.Time
		ScreenshotRef        string
		ScreenshotReceivedAt *time.Time
	}

	// Aggregate is one cost-sharing record tied to a single match.
	// It owns its members exclusively; member order is insertion order
	// and stays stable across rebalances.
	Aggregate struct {
		ID         string
		MatchRef   string
		TotalPaise int64
		Members    []Member
		Version    int64
		CreatedAt  time.Time
	}

	// PaymentEvent is one recorded payment by a member.
	PaymentEvent struct {
		ID          int64
		AggregateID string
		MemberID    string
		AmountPaise int64
		Method      PaymentMethod
		Note        string
		PaidAt      time.Time
	}
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrDuplicateMember = errors.New("duplicate member contact")
	ErrConflict        = errors.New("concurrent modification")
	ErrEmptyName       = errors.New("empty display name")
	ErrInvalidInput    = errors.New("invalid input")
)

// OverconstrainedError reports fixed shares that exceed the aggregate
// total. ShortfallPaise is the negative remainder pool so the caller
// can explain which overrides to relax. It unwraps to ErrInvalidAmount.
type OverconstrainedError struct {
	TotalPaise     int64
	FixedPaise     int64
	ShortfallPaise int64
}

func (e *OverconstrainedError) Error() string {
	return fmt.Sprintf("fixed shares %s exceed total %s by %s",
		FormatRupees(e.FixedPaise), FormatRupees(e.TotalPaise), FormatRupees(-e.ShortfallPaise))
}

func (e *OverconstrainedError) Unwrap() error { return ErrInvalidAmount }

// AutomaticShare returns a share computed by the split calculator.
func AutomaticShare() Share {
	return Share{}
}

// FixedShare returns a manually overridden share. Zero is allowed.
func FixedShare(paise int64) Share {
	return Share{fixed: true, paise: paise}
}

// IsFixed reports whether the share is a manual override.
func (s Share) IsFixed() bool { return s.fixed }

// FixedPaise returns the override amount and whether one is set.
func (s Share) FixedPaise() (int64, bool) { return s.paise, s.fixed }

func (s Share) Validate() error {
	if s.fixed && s.paise < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Validate() error {
	if m.Paise <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Member) Validate() error {
	if len(strings.TrimSpace(m.DisplayName)) == 0 {
		return ErrEmptyName
	}
	if len(m.DisplayName) > 100 {
		return fmt.Errorf("%w: display name too long (max 100 characters)", ErrInvalidInput)
	}
	if err := m.Share.Validate(); err != nil {
		return err
	}
	if m.PaidPaise < 0 || m.SettledPaise < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e PaymentEvent) Validate() error {
	if e.AmountPaise <= 0 {
		return ErrInvalidAmount
	}
	switch e.Method {
	case MethodUPI, MethodCash, MethodBank, "":
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, e.Method)
	}
	if len(e.Note) > 200 {
		return fmt.Errorf("%w: note too long (max 200 characters)", ErrInvalidInput)
	}
	return nil
}

// MemberByID returns a pointer into the aggregate's member slice,
// or nil when the ID is unknown.
func (a *Aggregate) MemberByID(id string) *Member {
	for i := range a.Members {
		if a.Members[i].ID == id {
			return &a.Members[i]
		}
	}
	return nil
}

// HasContact reports whether any member already uses the contact.
// Comparison ignores surrounding whitespace.
func (a *Aggregate) HasContact(contact string) bool {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return false
	}
	for i := range a.Members {
		if strings.TrimSpace(a.Members[i].Contact) == contact {
			return true
		}
	}
	return false
}

func (a *Aggregate) Validate() error {
	if a.TotalPaise <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(a.MatchRef) == "" {
		return fmt.Errorf("%w: empty match reference", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(a.Members))
	for i := range a.Members {
		if err := a.Members[i].Validate(); err != nil {
			return err
		}
		c := strings.TrimSpace(a.Members[i].Contact)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			return ErrDuplicateMember
		}
		seen[c] = struct{}{}
	}
	return nil
}
