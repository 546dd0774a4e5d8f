package governor

// DefaultMaxSteps is the snapshot cap used when none is configured.
const DefaultMaxSteps = 1000

// Budget is a fixed step allowance for one request. It is owned by a single
// driver goroutine.
type Budget struct {
	limit int
	used  int
}

// NewBudget creates a budget of limit steps. A non-positive limit falls back
// to DefaultMaxSteps.
func NewBudget(limit int) *Budget {
	if limit <= 0 {
		limit = DefaultMaxSteps
	}
	return &Budget{limit: limit}
}

// Take consumes one step. It returns false, without consuming, once the
// allowance is spent.
func (b *Budget) Take() bool {
	if b.used >= b.limit {
		return false
	}
	b.used++
	return true
}

// Exhausted reports whether no steps remain.
func (b *Budget) Exhausted() bool { return b.used >= b.limit }

// Used returns the number of steps taken.
func (b *Budget) Used() int { return b.used }

// Remaining returns the number of steps left.
func (b *Budget) Remaining() int { return b.limit - b.used }

// Limit returns the allowance.
func (b *Budget) Limit() int { return b.limit }
