package textutil

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// A candidate is an optional R$ marker followed by a run of digits and
	// separators.  Runs are taken whole so that a CPF or phone number can't
	// be mined for small values.
	moneyCandidateRE = regexp.MustCompile(`(?:R\$\s*)?([0-9][0-9.,\-]*)`)
	moneyValueRE     = regexp.MustCompile(`^\d+(?:[.,]\d{1,2})?$`)
)

// MoneyPolicy bounds what counts as a plausible amount.  Both ends are
// exclusive.
type MoneyPolicy struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// DefaultMoneyPolicy accepts amounts strictly between 0 and 10000.
var DefaultMoneyPolicy = MoneyPolicy{
	Min: decimal.Zero,
	Max: decimal.NewFromInt(10000),
}

// Plausible reports whether v falls inside the window.
func (p MoneyPolicy) Plausible(v decimal.Decimal) bool {
	return v.GreaterThan(p.Min) && v.LessThan(p.Max)
}

// Extract finds monetary amounts in text, in order of appearance.  Both
// "6,50" and "6.50" are read as six and a half.
func (p MoneyPolicy) Extract(text string) []decimal.Decimal {
	values := []decimal.Decimal{}
	for _, m := range moneyCandidateRE.FindAllStringSubmatch(text, -1) {
		token := strings.TrimRight(m[1], ".,-")
		if !moneyValueRE.MatchString(token) {
			continue
		}
		v, err := decimal.NewFromString(strings.Replace(token, ",", ".", 1))
		if err != nil {
			continue
		}
		if p.Plausible(v) {
			values = append(values, v)
		}
	}
	return values
}

// ExtractMoney is Extract under the default policy.
func ExtractMoney(text string) []decimal.Decimal {
	return DefaultMoneyPolicy.Extract(text)
}

// SumMoney adds up values.
func SumMoney(values []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, values...)
}
