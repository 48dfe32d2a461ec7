package core

// Settlement ledger: every value in this file is derived on read from
// the raw amounts. Nothing here is ever persisted, so stored state can
// not drift from the derivation.

// EffectivePaise is the amount this member actually owes: the fixed
// override when set, otherwise the calculated fair share.
func (m Member) EffectivePaise() int64 {
	if amt, ok := m.Share.FixedPaise(); ok {
		return amt
	}
	return m.CalculatedPaise
}

// DuePaise is the outstanding amount still to collect from this member.
func (m Member) DuePaise() int64 {
	if d := m.EffectivePaise() - m.PaidPaise; d > 0 {
		return d
	}
	return 0
}

// OwedPaise is the refund the organizer owes this member for
// overpayment. Surplus already forwarded to settle another member's
// due is excluded. Never positive at the same time as DuePaise.
func (m Member) OwedPaise() int64 {
	if o := m.PaidPaise - m.SettledPaise - m.EffectivePaise(); o > 0 {
		return o
	}
	return 0
}

// CollectedPaise is the money the organizer actually received from this
// member: payments minus amounts forwarded to settle someone else.
func (m Member) CollectedPaise() int64 {
	if c := m.PaidPaise - m.SettledPaise; c > 0 {
		return c
	}
	return 0
}

// Status derives the member's collection state from the two amounts.
func (m Member) Status() MemberStatus {
	effective := m.EffectivePaise()
	switch {
	case m.PaidPaise == 0 && effective > 0:
		return StatusPending
	case m.PaidPaise < effective:
		return StatusPartial
	case m.PaidPaise == effective:
		return StatusPaid
	default:
		return StatusOverpaid
	}
}

// TotalCollectedPaise sums net collections across all members. Settled
// amounts are excluded system-wide so money that never changed hands
// with the organizer is not double-counted.
func (a *Aggregate) TotalCollectedPaise() int64 {
	var sum int64
	for i := range a.Members {
		sum += a.Members[i].CollectedPaise()
	}
	return sum
}

// TotalPendingPaise sums outstanding dues across all members.
func (a *Aggregate) TotalPendingPaise() int64 {
	var sum int64
	for i := range a.Members {
		sum += a.Members[i].DuePaise()
	}
	return sum
}

// TotalOwedPaise sums refunds owed to members for overpayment.
func (a *Aggregate) TotalOwedPaise() int64 {
	var sum int64
	for i := range a.Members {
		sum += a.Members[i].OwedPaise()
	}
	return sum
}

// EffectiveSumPaise sums every member's effective share.
// After any rebalance this equals TotalPaise unless every member is
// fixed, in which case the difference is UnassignedPaise.
func (a *Aggregate) EffectiveSumPaise() int64 {
	var sum int64
	for i := range a.Members {
		sum += a.Members[i].EffectivePaise()
	}
	return sum
}

// UnassignedPaise is the part of the total no member owes. It can only
// be non-zero when every member has a fixed share (or the member list
// is empty); it is reported, never assigned.
func (a *Aggregate) UnassignedPaise() int64 {
	return a.TotalPaise - a.EffectiveSumPaise()
}

// Status compares net collections against the declared total.
func (a *Aggregate) Status() AggregateStatus {
	collected := a.TotalCollectedPaise()
	switch {
	case collected == 0 && a.TotalPaise > 0:
		return AggregatePending
	case collected < a.TotalPaise:
		return AggregatePartial
	default:
		return AggregateCompleted
	}
}

// ApplySettlement nets one member's overpayment against another's due
// outside the normal collection flow: `from` keeps the amount on their
// paid balance but it is flagged as settled, `to` is credited as paid.
// The amount must be positive and within `from`'s current refund.
func (a *Aggregate) ApplySettlement(fromID, toID string, amountPaise int64) error {
	if amountPaise <= 0 {
		return ErrInvalidAmount
	}
	from := a.MemberByID(fromID)
	to := a.MemberByID(toID)
	if from == nil || to == nil {
		return ErrNotFound
	}
	if from.ID == to.ID {
		return ErrInvalidAmount
	}
	if amountPaise > from.OwedPaise() {
		// Only the unsettled part of an overpayment can be forwarded.
		return ErrInvalidAmount
	}
	from.SettledPaise += amountPaise
	to.PaidPaise += amountPaise
	return nil
}
