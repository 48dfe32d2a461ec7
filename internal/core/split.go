package core

// SplitShares computes CalculatedPaise for every member whose share is
// automatic, dividing the remainder pool (total minus the sum of fixed
// shares) evenly. The first `pool mod n` automatic members in insertion
// order absorb one extra paisa each, so the assignment is deterministic
// and reproducible.
//
// The input slice is not modified; a rebalanced copy is returned.
// Members with fixed shares keep whatever CalculatedPaise they had.
//
// Returns *OverconstrainedError when the fixed shares alone exceed the
// total. An empty automatic set is not an error: the remainder is a
// rounding artifact reported by Aggregate.UnassignedPaise, owed to
// nobody.
func SplitShares(totalPaise int64, members []Member) ([]Member, error) {
	var fixedSum int64
	var flexible []int
	for i := range members {
		if amt, ok := members[i].Share.FixedPaise(); ok {
			fixedSum += amt
		} else {
			flexible = append(flexible, i)
		}
	}

	pool := totalPaise - fixedSum
	if pool < 0 {
		return nil, &OverconstrainedError{
			TotalPaise:     totalPaise,
			FixedPaise:     fixedSum,
			ShortfallPaise: pool,
		}
	}

	out := make([]Member, len(members))
	copy(out, members)

	if len(flexible) == 0 {
		return out, nil
	}

	base := pool / int64(len(flexible))
	extra := pool % int64(len(flexible))
	for rank, idx := range flexible {
		share := base
		if int64(rank) < extra {
			share++
		}
		out[idx].CalculatedPaise = share
	}
	return out, nil
}

// Rebalance reruns the split calculator over the aggregate's members.
// It is called after creation, member add/remove, share adjustment and
// total edits; payment recording never changes shares.
func (a *Aggregate) Rebalance() error {
	members, err := SplitShares(a.TotalPaise, a.Members)
	if err != nil {
		return err
	}
	a.Members = members
	return nil
}
