package extract

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// ParseHours reads "7.5", "7,5" or "7:30". Anything else is (0, false).
func ParseHours(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}

	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return decimal.Zero, false
		}
		mins, err := strconv.Atoi(strings.TrimSpace(m))
		if err != nil || mins < 0 || mins >= 60 {
			return decimal.Zero, false
		}
		d := decimal.NewFromInt(int64(mins)).Div(sixty)
		if strings.HasPrefix(strings.TrimSpace(h), "-") {
			return decimal.NewFromInt(int64(hours)).Sub(d), true
		}
		return decimal.NewFromInt(int64(hours)).Add(d), true
	}

	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// hoursOrZero is ParseHours with unparsable input counted as zero hours.
func hoursOrZero(s string) decimal.Decimal {
	d, _ := ParseHours(s)
	return d
}
