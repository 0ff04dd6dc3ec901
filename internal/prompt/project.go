package prompt

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	defaultProjectName = "Construction Project"
	notSpecified       = "Not specified"
)

// Project is the optional caller-supplied metadata attached to a BOQ request.
// A nil field means the caller did not send it.
type Project struct {
	Name     *string
	Location *string
	Client   *string
}

// Context renders the short project block embedded in BOQ prompts.
// Absent or empty fields fall back to placeholders; the fields themselves are never modified.
func (p Project) Context() string {
	return fmt.Sprintf("Project: %s\nLocation: %s\nClient: %s",
		lo.CoalesceOrEmpty(lo.FromPtr(p.Name), defaultProjectName),
		lo.CoalesceOrEmpty(lo.FromPtr(p.Location), notSpecified),
		lo.CoalesceOrEmpty(lo.FromPtr(p.Client), notSpecified),
	)
}

// Markup holds the percentage rates added on top of the measured works.
type Markup struct {
	Preliminaries  decimal.Decimal
	OverheadProfit decimal.Decimal
	Contingency    decimal.Decimal
}

// DefaultMarkup returns 10% preliminaries, 15% overhead and profit, 5% contingency.
func DefaultMarkup() Markup {
	return Markup{
		Preliminaries:  decimal.NewFromInt(10),
		OverheadProfit: decimal.NewFromInt(15),
		Contingency:    decimal.NewFromInt(5),
	}
}

// ParseMarkup parses percentage strings such as "10" or "12.5".
func ParseMarkup(preliminaries, overheadProfit, contingency string) (Markup, error) {
	var (
		m   Markup
		err error
	)
	if m.Preliminaries, err = parseRate("preliminaries", preliminaries); err != nil {
		return Markup{}, err
	}
	if m.OverheadProfit, err = parseRate("overhead_profit", overheadProfit); err != nil {
		return Markup{}, err
	}
	if m.Contingency, err = parseRate("contingency", contingency); err != nil {
		return Markup{}, err
	}
	return m, nil
}

func parseRate(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("markup %s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("markup %s must not be negative, got %s", name, d)
	}
	return d, nil
}

// Percent formats a rate for display, e.g. "10%".
func Percent(d decimal.Decimal) string {
	return d.String() + "%"
}
