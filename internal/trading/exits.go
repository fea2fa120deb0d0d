package trading

import (
	"math"

	"options-engine/internal/models"
	"options-engine/pkg/utils"
)

// ContractMultiplier is the number of shares per listed option contract.
const ContractMultiplier = 100

// ExitLevels are the target and stop prices for a structure.
type ExitLevels struct {
	Target float64 `json:"target"`
	Stop   float64 `json:"stop"`
}

// ExitOptions overrides the default exit multiples. Zero fields keep defaults.
type ExitOptions struct {
	TargetMultiple float64 // debit: target = debit × multiple
	StopMultiple   float64 // debit: stop = debit × multiple
	TargetPercent  float64 // credit capture, or calendar gain
	StopPercent    float64 // credit loss, or calendar loss
}

func cents(v float64) float64 {
	return utils.Round(v, 2)
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// DebitExits returns exits for a single long leg: 2× debit target, 0.5× debit stop.
func DebitExits(debit float64, opts ExitOptions) ExitLevels {
	return ExitLevels{
		Target: cents(debit * orDefault(opts.TargetMultiple, 2.0)),
		Stop:   cents(debit * orDefault(opts.StopMultiple, 0.5)),
	}
}

// CreditSpreadExits returns exits for a credit spread: 50% capture target and
// a stop at 150% of credit, capped at the structure's true max loss.
func CreditSpreadExits(credit, width float64, opts ExitOptions) ExitLevels {
	targetPct := orDefault(opts.TargetPercent, 0.50)
	stopPct := orDefault(opts.StopPercent, 1.50)

	maxLoss := width - credit
	return ExitLevels{
		Target: cents(credit * (1 - targetPct)),
		Stop:   math.Min(cents(credit*(1+stopPct)), cents(credit+maxLoss)),
	}
}

// CondorExits applies the credit spread rule to the combined condor credit
// and the single-side width.
func CondorExits(totalCredit, width float64, opts ExitOptions) ExitLevels {
	return CreditSpreadExits(totalCredit, width, opts)
}

// CalendarExits returns exits for a calendar: 30% gain target, 45% loss stop.
func CalendarExits(netDebit float64, opts ExitOptions) ExitLevels {
	return ExitLevels{
		Target: cents(netDebit * (1 + orDefault(opts.TargetPercent, 0.30))),
		Stop:   cents(netDebit * (1 - orDefault(opts.StopPercent, 0.45))),
	}
}

// MaxLoss returns the dollar max loss of a structure for qty contracts.
// Unknown entry types and missing prices yield 0.
func MaxLoss(entryType models.EntryType, debit, credit, width float64, qty int) float64 {
	q := float64(qty * ContractMultiplier)

	switch entryType {
	case models.EntryDebitCall, models.EntryDebitPut, models.EntryCalendar:
		if debit <= 0 {
			return 0
		}
		return debit * q
	case models.EntryCreditSpread, models.EntryIronCondor:
		if width <= 0 || credit <= 0 {
			return 0
		}
		return (width - credit) * q
	}
	return 0
}
