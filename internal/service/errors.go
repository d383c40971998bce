package service

import "fmt"

// AllocationConfigError marks a misconfiguration that must be surfaced to an
// operator, never silently corrected: commission percentages above 100 or a
// fixed-mode client without a daily cap.
type AllocationConfigError struct {
	Reason string
}

func (e *AllocationConfigError) Error() string {
	return "allocation config error: " + e.Reason
}

// PayoutError wraps a failed payment issuance for one distribution. The
// distribution row is kept as failed; it is never retried automatically.
type PayoutError struct {
	DistributionID string
	Err            error
}

func (e *PayoutError) Error() string {
	return fmt.Sprintf("payout for distribution %s failed: %v", e.DistributionID, e.Err)
}

func (e *PayoutError) Unwrap() error { return e.Err }
