package textutil

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	combiningMarks = &unicode.RangeTable{
		R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
	}

	brPrinter = message.NewPrinter(language.BrazilianPortuguese)
)

// NormalizeName folds a player name for fuzzy matching: trimmed, lower
// case, accents stripped, runs of whitespace squeezed to one space.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningMarks)))
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(s), " ")
}

// JoinNames joins a list the way Portuguese does: "a, b e c".
func JoinNames(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " e " + items[len(items)-1]
}

// FormatBRL formats an amount as Brazilian reais.
func FormatBRL(d decimal.Decimal) string {
	return brPrinter.Sprintf("R$ %.2f", d.Round(2).InexactFloat64())
}

// FormatPlace converts a numeric place to an ordinal ("1º", "2º", ...).
func FormatPlace(place int) string {
	return fmt.Sprintf("%dº", place)
}

// FormatDateTimeBR renders t as dd/mm/yyyy HH:MM in loc.
func FormatDateTimeBR(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("02/01/2006 15:04")
}
