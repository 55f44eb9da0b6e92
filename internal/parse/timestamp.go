package parse

import (
	"regexp"
	"strconv"
	"time"
)

// tzOffsets maps the NWS timezone abbreviations to fixed UTC offsets in
// hours. DST abbreviations are listed explicitly rather than derived, since
// the source text never disambiguates by date.
var tzOffsets = map[string]int{
	"PST": -8, "PDT": -7,
	"MST": -7, "MDT": -6,
	"CST": -6, "CDT": -5,
	"EST": -5, "EDT": -4,
	"AKST": -9, "AKDT": -8,
	"HST": -10,
	"GMT": 0, "UTC": 0,
}

var months = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// humanTimestampRe matches both "1037 PM PST Fri Feb 13 2026" and
// "9:28 PM MST Fri Feb 13 2026" shapes; the minute group is optional.
var humanTimestampRe = regexp.MustCompile(
	`(\d{1,4})(?::(\d{2}))?\s*(AM|PM)\s+([A-Z]{3,4})\s+[A-Za-z]{3}\s+([A-Za-z]{3})\s+(\d{1,2})\s+(\d{4})`,
)

// ParseHumanTimestamp finds and decodes the first human-readable NWS
// timestamp in text, returning it as a UTC time. ok is false when no
// recognizable timestamp is present or the timezone abbreviation is unknown.
func ParseHumanTimestamp(text string) (time.Time, bool) {
	m := humanTimestampRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	hourField, minField, ampm, tz, monStr, dayStr, yearStr := m[1], m[2], m[3], m[4], m[5], m[6], m[7]

	var hour, minute int
	if minField != "" {
		h, err := strconv.Atoi(hourField)
		if err != nil {
			return time.Time{}, false
		}
		min, err := strconv.Atoi(minField)
		if err != nil {
			return time.Time{}, false
		}
		hour, minute = h, min
	} else {
		// Three- or four-digit hour form: "839 PM" -> H MM, "1037 PM" -> HH MM.
		digits := hourField
		if len(digits) < 3 {
			return time.Time{}, false
		}
		minPart := digits[len(digits)-2:]
		hourPart := digits[:len(digits)-2]
		h, err := strconv.Atoi(hourPart)
		if err != nil {
			return time.Time{}, false
		}
		min, err := strconv.Atoi(minPart)
		if err != nil {
			return time.Time{}, false
		}
		hour, minute = h, min
	}

	if ampm == "PM" && hour != 12 {
		hour += 12
	} else if ampm == "AM" && hour == 12 {
		hour = 0
	}

	offset, ok := tzOffsets[tz]
	if !ok {
		return time.Time{}, false
	}
	month, ok := months[monStr]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}

	local := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	return local.Add(-time.Duration(offset) * time.Hour), true
}
