package cli

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"options-engine/internal/models"
)

var usdPattern = regexp.MustCompile(`^-?\$\d{1,3}(,\d{3})*\.\d{2}$`)

func parseUSD(s string) float64 {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	v, _ := strconv.ParseFloat(s, 64)
	if neg {
		return -v
	}
	return v
}

// Property: FormatUSD groups by thousands, keeps two decimals and
// preserves the rounded value.
func TestProperty_USDFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatUSD produces grouped dollars", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatUSD(amount)
			if !usdPattern.MatchString(formatted) {
				t.Logf("bad format for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatUSD preserves value", prop.ForAll(
		func(amount float64) bool {
			parsed := parseUSD(FormatUSD(amount))
			return math.Abs(parsed-math.Round(amount*100)/100) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.TestingRun(t)
}

// Property: TruncateString never exceeds the limit and leaves short strings
// untouched.
func TestProperty_TruncateString(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("length bounded", prop.ForAll(
		func(s string, n int) bool {
			out := TruncateString(s, n)
			if len(s) <= n {
				return out == s
			}
			return len(out) == n
		},
		gen.AlphaString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestFormatUSD_Examples(t *testing.T) {
	assert.Equal(t, "$0.00", FormatUSD(0))
	assert.Equal(t, "$999.50", FormatUSD(999.5))
	assert.Equal(t, "$1,000.00", FormatUSD(1000))
	assert.Equal(t, "-$1,234,567.89", FormatUSD(-1234567.891))
}

func TestFormatLegs(t *testing.T) {
	legs := []models.ProposalLeg{
		{Side: models.SideSell, Type: models.Put, Strike: 85, Expiry: "2025-04-18", Quantity: 1},
		{Side: models.SideBuy, Type: models.Put, Strike: 80, Expiry: "2025-04-18", Quantity: 1},
		{Side: models.SideBuy, Type: models.Call, Strike: 102.5, Expiry: "2025-05-16", Quantity: 2},
	}
	assert.Equal(t, "-85P +80P +2x102.5C", FormatLegs(legs))
	assert.Equal(t, "2025-04-18/2025-05-16", FormatExpiries(legs))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "3m 5s", FormatDuration(185*time.Second))
	assert.Equal(t, "2h 30m", FormatDuration(150*time.Minute))
	assert.Equal(t, "1d 2h", FormatDuration(26*time.Hour))
}

func TestFormatPercentAndPrice(t *testing.T) {
	assert.Equal(t, "+2.50%", FormatPercent(2.5))
	assert.Equal(t, "-1.00%", FormatPercent(-1))
	assert.Equal(t, "-", FormatPrice(nil))
	assert.Equal(t, "1.25", FormatPrice(models.Float(1.25)))
	assert.Equal(t, "-", FormatRiskReward(nil))
}
