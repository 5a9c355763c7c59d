/*
invoice.go - Invoice upsert and status rules

CRITICAL INVARIANTS:
  1. UNIQUE: One invoice per (line, client, month, year)
  2. IDEMPOTENT: Regenerating with the same events yields identical totals
  3. MONOTONE: Once PAID, regeneration never downgrades the status

UPSERT RULE:
  - No existing invoice  -> insert with status DRAFT and a new number
  - Existing invoice     -> overwrite totals unconditionally;
                            status = PAID if existing is PAID, else DRAFT

  Regenerating a SENT or OVERDUE invoice returns it to DRAFT. Only PAID
  survives recomputation.

STATUS TRANSITIONS (SetInvoiceStatus):
  DRAFT   -> SENT, PAID
  SENT    -> PAID, OVERDUE
  OVERDUE -> PAID
  PAID    -> (terminal)

NUMBERING:
  prefix + zero-padded sequence, sequence per line, never reused.
*/
package revenue

import (
	"fmt"
	"time"
)

// MergeInvoice applies the upsert rule. existing is nil when no invoice is
// stored for key. The returned invoice has no Number when it is new; the
// caller assigns one.
func MergeInvoice(existing *PeriodInvoice, key InvoiceKey, totals Totals, now time.Time) PeriodInvoice {
	if existing == nil {
		return PeriodInvoice{
			Line:            key.Line,
			ClientID:        key.ClientID,
			Period:          key.Period,
			TotalGross:      totals.Gross,
			TotalCommission: totals.Commission,
			TotalLicenseFee: totals.LicenseFee,
			EventCount:      totals.EventCount,
			AchievedCount:   totals.AchievedCount,
			Status:          StatusDraft,
			GeneratedAt:     now,
			UpdatedAt:       now,
		}
	}

	merged := *existing
	merged.TotalGross = totals.Gross
	merged.TotalCommission = totals.Commission
	merged.TotalLicenseFee = totals.LicenseFee
	merged.EventCount = totals.EventCount
	merged.AchievedCount = totals.AchievedCount
	merged.Status = regeneratedStatus(existing.Status)
	merged.UpdatedAt = now
	return merged
}

func regeneratedStatus(existing InvoiceStatus) InvoiceStatus {
	if existing == StatusPaid {
		return StatusPaid
	}
	return StatusDraft
}

var allowedTransitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:   {StatusSent, StatusPaid},
	StatusSent:    {StatusPaid, StatusOverdue},
	StatusOverdue: {StatusPaid},
}

// CanTransition reports whether an invoice may move from one status to another.
func CanTransition(from, to InvoiceStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns inv moved to status, or a StatusTransitionError.
// Moving to PAID stamps PaidAt.
func Transition(inv PeriodInvoice, to InvoiceStatus, now time.Time) (PeriodInvoice, error) {
	if !CanTransition(inv.Status, to) {
		return inv, &StatusTransitionError{InvoiceID: inv.ID, From: inv.Status, To: to}
	}
	inv.Status = to
	inv.UpdatedAt = now
	if to == StatusPaid {
		paid := now
		inv.PaidAt = &paid
	}
	return inv, nil
}

// DefaultPrefixes are the invoice number prefixes per line.
var DefaultPrefixes = map[Line]string{
	LineProsper:  "PRO-",
	LineConnect:  "CON-",
	LineGrow:     "GRW-",
	LineDigitize: "DIG-",
}

// FormatInvoiceNumber renders prefix + six-digit sequence.
func FormatInvoiceNumber(prefix string, seq int64) string {
	return fmt.Sprintf("%s%06d", prefix, seq)
}
