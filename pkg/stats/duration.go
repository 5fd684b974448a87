package stats

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Accepts "[D day[s], ][H:][M:]S" with optional fractional parts.
var durationPattern = regexp.MustCompile(
	`^((?P<days>[.\d]+?)\sdays?,\s*)?((?P<hours>[.\d]+?):)?((?P<minutes>[.\d]+?):)?((?P<seconds>[.\d]+?))?$`)

// ParseDuration parses a task duration such as "1:02:03" or "2 days, 0:00:10"
// into seconds. The boolean is false for empty or malformed input.
func ParseDuration(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}

	scale := map[string]float64{"days": 86400, "hours": 3600, "minutes": 60, "seconds": 1}
	var total float64
	for i, name := range durationPattern.SubexpNames() {
		unit, ok := scale[name]
		if !ok || m[i] == "" {
			continue
		}
		v, err := strconv.ParseFloat(m[i], 64)
		if err != nil {
			return 0, false
		}
		total += v * unit
	}
	return total, true
}

// FormatHMS renders seconds as "H:MM:SS", with a "N day(s), " prefix past
// 24 hours and a microsecond fraction when present.
func FormatHMS(seconds float64) string {
	us := int64(math.Round(seconds * 1e6))
	const usPerDay = 86400 * int64(1e6)

	days := us / usPerDay
	rem := us % usPerDay
	if rem < 0 {
		days--
		rem += usPerDay
	}

	secs := rem / 1e6
	micros := rem % 1e6
	out := fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
	if micros != 0 {
		out += fmt.Sprintf(".%06d", micros)
	}
	if days != 0 {
		unit := "days"
		if days == 1 || days == -1 {
			unit = "day"
		}
		out = fmt.Sprintf("%d %s, %s", days, unit, out)
	}
	return out
}
