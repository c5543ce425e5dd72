package softtx

import (
	"math"
	"time"
)

// UnboundedTryTimes is a retry ceiling no log reaches in practice; the operator
// read path uses it to see exhausted logs.
const UnboundedTryTimes = math.MaxInt32

// Criteria selects the logs due for another delivery attempt.
//
// A log matches when its type equals Type (any type if Type is zero), its try
// counter is at least MinTryTimes and strictly below MaxDeliveryTryTimes, and
// it was created at or before CreatedBefore (no cutoff if CreatedBefore is zero).
type Criteria struct {
	Type                Type
	MinTryTimes         int
	MaxDeliveryTryTimes int
	Limit               int
	CreatedBefore       time.Time
}

// NewCriteria builds criteria for logs created at least minDelay before now.
func NewCriteria(now time.Time, maxTryTimes, limit int, minDelay time.Duration) Criteria {
	if minDelay < 0 {
		minDelay = 0
	}

	return Criteria{
		MaxDeliveryTryTimes: maxTryTimes,
		Limit:               limit,
		CreatedBefore:       now.Add(-minDelay),
	}
}

// WithType returns a copy of c restricted to logs of type t.
func (c Criteria) WithType(t Type) Criteria {
	c.Type = t

	return c
}

// Validate checks the try bounds, the limit and the type.
func (c Criteria) Validate() error {
	if c.MaxDeliveryTryTimes <= 0 {
		return ErrInvalidMaxTryTimes
	}
	if c.Limit <= 0 {
		return ErrInvalidLimit
	}
	if c.MinTryTimes < 0 {
		return ErrInvalidTryTimes
	}
	if c.Type != 0 && !c.Type.Valid() {
		return ErrUnsupportedType
	}

	return nil
}

// HasCutoff reports whether CreatedBefore restricts the result.
func (c Criteria) HasCutoff() bool {
	return !c.CreatedBefore.IsZero()
}

// CutoffMillis returns CreatedBefore as Unix milliseconds, or math.MaxInt64 without a cutoff.
func (c Criteria) CutoffMillis() int64 {
	if !c.HasCutoff() {
		return math.MaxInt64
	}

	return c.CreatedBefore.UnixMilli()
}

// Matches reports whether log is eligible under c, ignoring Limit.
func (c Criteria) Matches(log TransactionLog) bool {
	if c.Type != 0 && log.Type != c.Type {
		return false
	}
	if log.AsyncDeliveryTryTimes < c.MinTryTimes || log.AsyncDeliveryTryTimes >= c.MaxDeliveryTryTimes {
		return false
	}

	return log.CreationTimeMillis() <= c.CutoffMillis()
}

// Exhausted reports whether log has used up a retry budget of maxTryTimes.
func Exhausted(log TransactionLog, maxTryTimes int) bool {
	return log.AsyncDeliveryTryTimes >= maxTryTimes
}
