package domain

import (
	"strconv"
	"strings"
	"unicode"
)

// categoryIcons maps category keywords to icon keys, checked in order.
var categoryIcons = []struct {
	keywords []string
	icon     string
}{
	{[]string{"frozen"}, "frozen"},
	{[]string{"sauce", "condiment", "seasoning", "spice", "paste"}, "sauce"},
	{[]string{"noodle", "pasta", "rice", "grain", "flour"}, "grain"},
	{[]string{"beverage", "drink", "juice", "tea", "coffee", "water"}, "beverage"},
	{[]string{"snack", "cookie", "chip", "cracker", "confection"}, "snack"},
	{[]string{"dairy", "milk", "cheese", "yogurt"}, "dairy"},
	{[]string{"meat", "seafood", "fish", "poultry"}, "protein"},
	{[]string{"produce", "vegetable", "fruit", "kimchi"}, "produce"},
}

// CategoryIconKey returns the icon key for a free-form category name.
func CategoryIconKey(category string) string {
	c := strings.ToLower(category)
	if strings.TrimSpace(c) == "" {
		return "default"
	}
	for _, entry := range categoryIcons {
		for _, kw := range entry.keywords {
			if strings.Contains(c, kw) {
				return entry.icon
			}
		}
	}
	return "default"
}

// FormatPrice renders a price for display, "-" when no price is known.
func FormatPrice(price, currency, basis *string) string {
	p := strings.TrimSpace(deref(price))
	if p == "" {
		return "-"
	}
	cur := strings.TrimSpace(deref(currency))
	if cur != "" && startsWithDigit(p) {
		p = cur + " " + p
	}
	if b := strings.TrimSpace(deref(basis)); b != "" {
		p += " / " + b
	}
	return p
}

// ParsePrice extracts the numeric amount from a price string such as
// "$10.00", "KRW 12,500" or "3,50 EUR".
func ParsePrice(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	num := b.String()
	if num == "" {
		return 0, false
	}

	hasDot := strings.Contains(num, ".")
	hasComma := strings.Contains(num, ",")
	switch {
	case hasDot && hasComma:
		num = strings.ReplaceAll(num, ",", "")
	case hasComma:
		// A single comma followed by one or two digits is a decimal separator.
		idx := strings.LastIndex(num, ",")
		if strings.Count(num, ",") == 1 && len(num)-idx-1 <= 2 {
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(num, ",", "")
		}
	}

	v, err := strconv.ParseFloat(strings.Trim(num, "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func startsWithDigit(s string) bool {
	for _, r := range s {
		return unicode.IsDigit(r)
	}
	return false
}
