package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata"
)

// OLX renders "Сьогодні о 12:30" in UTC.
var relativeClockRe = regexp.MustCompile(`(Сьогодні|Вчора) о (\d{1,2}):(\d{2})`)

var kyiv = mustLocation("Europe/Kyiv")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, 3*60*60)
	}
	return loc
}

// AdjustedTimeToKyiv rewrites the UTC clock in OLX location-date text to Kyiv time.
func AdjustedTimeToKyiv(text string) string {
	_, offset := time.Now().In(kyiv).Zone()
	return ShiftClock(text, time.Duration(offset)*time.Second)
}

// ShiftClock moves every "<day> о HH:MM" occurrence by offset, wrapping at midnight.
func ShiftClock(text string, offset time.Duration) string {
	return relativeClockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := relativeClockRe.FindStringSubmatch(match)
		if len(parts) != 4 {
			return match
		}

		hour, err := strconv.Atoi(parts[2])
		if err != nil {
			return match
		}
		minute, err := strconv.Atoi(parts[3])
		if err != nil {
			return match
		}

		const day = 24 * 60
		total := (hour*60 + minute + int(offset/time.Minute)) % day
		if total < 0 {
			total += day
		}

		return fmt.Sprintf("%s о %02d:%02d", parts[1], total/60, total%60)
	})
}
