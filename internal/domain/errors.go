package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrLockHeld         = errors.New("lock already held")
	ErrSubscriptionLost = errors.New("subscription lost")
	ErrPortfolioHalted  = errors.New("portfolio halted pending reconciliation")
)

// ErrorKind classifies boundary failures so callers can pick the right
// handling without string matching.
type ErrorKind int

const (
	// KindTransient covers network failures that are safe to retry with
	// backoff (feed disconnect, connection refused).
	KindTransient ErrorKind = iota
	// KindAmbiguous marks operations whose outcome is unknown (request sent,
	// response lost). The caller must reconcile before retrying.
	KindAmbiguous
	// KindBusiness marks rejections by the exchange or risk rules. Never
	// retried.
	KindBusiness
	// KindIntegrity marks local/exchange state divergence beyond tolerance.
	// Fatal to trading for the affected session, not to the process.
	KindIntegrity
	// KindDurability marks persistence failures. Degrades to a warning;
	// trading continues.
	KindDurability
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindAmbiguous:
		return "ambiguous"
	case KindBusiness:
		return "business"
	case KindIntegrity:
		return "integrity"
	case KindDurability:
		return "durability"
	}
	return "unknown"
}

// KindError attaches an ErrorKind to an underlying error.
type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error { return e.Err }

// WithKind wraps err with the given kind. Returns nil for a nil err.
func WithKind(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err. Unclassified errors default to
// KindTransient, the safest assumption for boundary calls.
func KindOf(err error) ErrorKind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindTransient
}

// IsAmbiguous reports whether the outcome of the failed operation is unknown.
func IsAmbiguous(err error) bool {
	return err != nil && KindOf(err) == KindAmbiguous
}
