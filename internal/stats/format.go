package stats

import "strconv"

func percentString(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}
