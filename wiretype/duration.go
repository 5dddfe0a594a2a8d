package wiretype

import (
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
)

// FormatDuration renders d as an XML Schema duration (PnDTnHnMnS). Days are
// the largest unit emitted since months and years have no fixed length.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	b := &strings.Builder{}
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		b.WriteString(strconv.FormatInt(int64(days), 10))
		b.WriteByte('D')
	}
	if d == 0 {
		return b.String()
	}
	b.WriteByte('T')
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	if h > 0 {
		b.WriteString(strconv.FormatInt(int64(h), 10))
		b.WriteByte('H')
	}
	if m > 0 {
		b.WriteString(strconv.FormatInt(int64(m), 10))
		b.WriteByte('M')
	}
	if d > 0 {
		b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
		b.WriteByte('S')
	}
	return b.String()
}

// ParseDuration parses an XML Schema duration. Years and months are
// rejected because they do not denote a fixed time.Duration.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 2 {
		return 0, errors.NotValidf("duration %q", orig)
	}
	s = s[1:]
	var total time.Duration
	inTime := false
	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, errors.NotValidf("duration %q", orig)
			}
			inTime = true
			s = s[1:]
			continue
		}
		i := 0
		for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, errors.NotValidf("duration %q", orig)
		}
		n, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, errors.NotValidf("duration %q", orig)
		}
		var unit time.Duration
		switch {
		case !inTime && s[i] == 'D':
			unit = 24 * time.Hour
		case !inTime && s[i] == 'W':
			unit = 7 * 24 * time.Hour
		case inTime && s[i] == 'H':
			unit = time.Hour
		case inTime && s[i] == 'M':
			unit = time.Minute
		case inTime && s[i] == 'S':
			unit = time.Second
		default:
			return 0, errors.NotValidf("duration %q", orig)
		}
		total += time.Duration(n * float64(unit))
		s = s[i+1:]
	}
	if neg {
		total = -total
	}
	return total, nil
}
