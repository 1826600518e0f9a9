package validator

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/tcees/models"
)

var errNotNumber = errors.New("not a number")

var (
	// 1.500 / 1.500.000,00
	groupedBR = regexp.MustCompile(`^\d{1,3}(\.\d{3})+(,\d+)?$`)
	// 1500 / 1500,00
	decimalBR = regexp.MustCompile(`^\d+(,\d+)?$`)
	// 1500.00
	decimalDot = regexp.MustCompile(`^\d+\.\d+$`)
)

// ParseNumber reads plain ("1500.00") and Brazilian ("1.500,00",
// "R$ 1.500,00") amounts. A single dot followed by exactly three digits
// ("1.500") is a thousands separator after "R$" and ambiguous otherwise,
// so it is rejected. Mixed US grouping ("1,500.00"), exponents and
// underscores are rejected too.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	currency := strings.HasPrefix(s, "R$")
	s = strings.TrimSpace(strings.TrimPrefix(s, "R$"))
	if !neg && strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}

	var plain string
	switch grouped := groupedBR.MatchString(s); {
	case grouped && (currency || strings.Contains(s, ",") || strings.Count(s, ".") > 1):
		plain = strings.Replace(strings.ReplaceAll(s, ".", ""), ",", ".", 1)
	case decimalBR.MatchString(s):
		plain = strings.Replace(s, ",", ".", 1)
	case decimalDot.MatchString(s) && !grouped:
		plain = s
	default:
		return 0, errNotNumber
	}

	n, err := strconv.ParseFloat(plain, 64)
	if err != nil || math.IsInf(n, 0) {
		return 0, errNotNumber
	}
	if neg {
		n = -n
	}
	return n, nil
}

var dateLayouts = []string{time.DateOnly, "02/01/2006"}

// ParseDate reads ISO ("2024-03-01") and Brazilian ("01/03/2024") dates.
func ParseDate(s string) (models.Date, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return models.Date{Time: t}, nil
		}
	}
	return models.Date{}, err
}
