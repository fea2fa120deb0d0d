package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"options-engine/internal/models"
	"options-engine/pkg/utils"
)

// FormatUSD formats a dollar amount with thousands separators.
func FormatUSD(amount float64) string {
	return utils.FormatUSD(amount)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	return utils.FormatPercent(value)
}

// FormatPrice formats an option price, or "-" when absent.
func FormatPrice(price *float64) string {
	return utils.FormatOptional(price, "%.2f")
}

// FormatStrike drops a trailing ".0" from whole strikes.
func FormatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// FormatLegs renders legs compactly, e.g. "-85P +80P".
func FormatLegs(legs []models.ProposalLeg) string {
	parts := make([]string, 0, len(legs))
	for _, l := range legs {
		sign := "+"
		if l.Side == models.SideSell {
			sign = "-"
		}
		right := "C"
		if l.Type == models.Put {
			right = "P"
		}
		qty := ""
		if l.Quantity > 1 {
			qty = strconv.Itoa(l.Quantity) + "x"
		}
		parts = append(parts, sign+qty+FormatStrike(l.Strike)+right)
	}
	return strings.Join(parts, " ")
}

// FormatExpiries lists the distinct leg expiries in leg order.
func FormatExpiries(legs []models.ProposalLeg) string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range legs {
		if !seen[l.Expiry] {
			seen[l.Expiry] = true
			out = append(out, l.Expiry)
		}
	}
	return strings.Join(out, "/")
}

// FormatRiskReward formats a reward-to-risk ratio.
func FormatRiskReward(rr *float64) string {
	if rr == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *rr)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
