package templates

import (
	"strings"
	"text/template"

	"github.com/dustin/go-humanize"
)

// FuncMap is available to every template in a registry
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"money":    Money,
		"truncate": Truncate,
		"join":     strings.Join,
		"bullets":  Bullets,
		"upper":    strings.ToUpper,
		"title":    Title,
	}
}

// Money renders v as dollars with two decimals and thousands separators
func Money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Truncate cuts s to n runes and appends "..." when it was cut
func Truncate(n int, s string) string {
	s = strings.ToValidUTF8(s, "")
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Bullets renders each item on its own "- " line
func Bullets(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

// Title upper-cases the first letter of s
func Title(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
