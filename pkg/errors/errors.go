package apperrors

import "errors"

// Standardized venue errors
var (
	ErrRiskLimitRejected = errors.New("order rejected by venue risk limit")
	ErrProtocol          = errors.New("venue protocol error")
	ErrMissingMarketData = errors.New("market data unavailable")
	ErrNetwork           = errors.New("network error")
	ErrMarketClosed      = errors.New("market closed")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// IsRiskLimitRejection reports whether err is the venue's distinguished
// risk-limit rejection, which halts the current reconciliation pass but is
// retried on the next tick.
func IsRiskLimitRejection(err error) bool {
	return errors.Is(err, ErrRiskLimitRejected)
}
