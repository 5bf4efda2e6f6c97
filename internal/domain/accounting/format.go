package accounting

import "github.com/dustin/go-humanize"

// FormatMoney renders v as dollars with thousands separators and two decimals
func FormatMoney(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// FormatPercent renders v with one decimal and a percent sign
func FormatPercent(v float64) string {
	return humanize.FormatFloat("#.#", v) + "%"
}
