package tracker

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/savegress/dosetrack/internal/pk"
	"github.com/savegress/dosetrack/pkg/models"
)

// parseDoseTime parses an HH:MM time-of-day string, falling back to 08:00
func parseDoseTime(s string) (hour, minute int) {
	parts := strings.Split(s, ":")
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 8, 0
	}
	m := 0
	if len(parts) > 1 {
		m, err = strconv.Atoi(parts[1])
		if err != nil {
			return 8, 0
		}
	}
	if h < 0 {
		h = 0
	} else if h > 23 {
		h = 23
	}
	if m < 0 {
		m = 0
	} else if m > 59 {
		m = 59
	}
	return h, m
}

// anchorTimestamp returns the Unix time of the most recent cycle day
// matching the schedule phase, at the given time of day. Cycle days are
// epoch days modulo the 28-day cycle.
func anchorTimestamp(now time.Time, phaseDays, hour, minute int) float64 {
	epochDay := now.Unix() / 86400
	cycleDay := epochDay % pk.CycleDays
	daysBack := (cycleDay - int64(phaseDays)) % pk.CycleDays
	if daysBack < 0 {
		daysBack += pk.CycleDays
	}
	anchorDay := epochDay - daysBack
	todSec := int64(hour)*3600 + int64(minute)*60
	return float64(anchorDay*86400 + todSec)
}

// scheduleOccurrences walks a schedule forward from its cycle anchor and
// splits occurrences into those already due and those still upcoming
// within the horizon. Both lists are ordered by time.
func scheduleOccurrences(sch *models.Schedule, now time.Time, horizon time.Duration) (due, upcoming []time.Time) {
	intervalSec := sch.IntervalDays * 86400.0
	if intervalSec <= 0 {
		return nil, nil
	}

	hour, minute := parseDoseTime(sch.DoseTime)
	nowSec := float64(now.Unix())
	limit := nowSec + horizon.Seconds()

	t := anchorTimestamp(now, int(sch.PhaseDays), hour, minute)
	for ; t <= nowSec; t += intervalSec {
		due = append(due, time.Unix(int64(math.Round(t)), 0).UTC())
	}
	for ; t <= limit; t += intervalSec {
		upcoming = append(upcoming, time.Unix(int64(math.Round(t)), 0).UTC())
	}
	return due, upcoming
}
