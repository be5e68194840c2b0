// Package subject defines the fixed crawl subjects and their target-period
// rules. A target period is the string token naming the time window a single
// crawl run is responsible for; its format differs per subject and is
// compared against the completion token in the crawl log to decide whether a
// run is still due.
package subject

import (
	"strings"
	"time"
)

// Subject is one of the fixed top-level data domains.
type Subject string

const (
	AirQuality          Subject = "air_quality"
	Traffic             Subject = "traffic"
	Weather             Subject = "weather"
	Constructions       Subject = "constructions"
	CarRegistrations    Subject = "car_registrations"
	NewCarRegistrations Subject = "new_car_registrations"
	General             Subject = "general"
)

// All returns every subject in fixed processing order. General comes first
// because its log carries the initialization records for the whole run.
func All() []Subject {
	return []Subject{General, AirQuality, Traffic, Weather, Constructions, CarRegistrations, NewCarRegistrations}
}

// DataSubjects returns the six subjects that own datasets in the store.
// General is log-only.
func DataSubjects() []Subject {
	return []Subject{AirQuality, Traffic, Weather, Constructions, CarRegistrations, NewCarRegistrations}
}

// Valid reports whether s is a declared subject.
func (s Subject) Valid() bool {
	switch s {
	case AirQuality, Traffic, Weather, Constructions, CarRegistrations, NewCarRegistrations, General:
		return true
	}
	return false
}

func (s Subject) String() string { return string(s) }

// TargetPeriod derives the period token a run started at now is responsible
// for. Pure function of (s, now).
//
//	air_quality            previous calendar day, 2006-01-02
//	car_registrations      previous calendar year, 2006
//	new_car_registrations  previous calendar month, 200601
//	weather                current instant, 2006-01-02_15:04
//	traffic                one-hour window [now-3h, now-2h) after rounding now
//	                       to the nearest hour, <start>Z/<end>Z
//	constructions, general current calendar day, 2006-01-02
func TargetPeriod(s Subject, now time.Time) string {
	switch s {
	case AirQuality:
		return now.AddDate(0, 0, -1).Format("2006-01-02")
	case CarRegistrations:
		return now.AddDate(-1, 0, 0).Format("2006")
	case NewCarRegistrations:
		// First of the current month minus a day lands in the previous
		// month regardless of month length (AddDate would normalize
		// Mar 31 - 1 month into March again).
		y, m, _ := now.Date()
		prev := time.Date(y, m, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -1)
		return prev.Format("200601")
	case Weather:
		return now.Format("2006-01-02_15:04")
	case Traffic:
		rounded := roundToHour(now)
		begin := rounded.Add(-3 * time.Hour).Format(windowLayout)
		end := rounded.Add(-2 * time.Hour).Format(windowLayout)
		return begin + "Z/" + end + "Z"
	default:
		return now.Format("2006-01-02")
	}
}

const windowLayout = "2006-01-02T15:04:05"

// roundToHour rounds t to the nearest full hour; minute >= 30 rounds up.
func roundToHour(t time.Time) time.Time {
	if t.Minute() >= 30 {
		t = t.Add(time.Hour)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}

// Tolerance windows for the two subjects whose period tokens carry a clock
// time. A completion slightly off the freshly derived target still counts.
const (
	weatherTolerance = 10 * time.Minute
	trafficTolerance = 15 * time.Minute
)

// TokenMatches reports whether a recorded completion token got satisfies the
// target token want for subject s. Weather and traffic match within their
// tolerance windows; every other subject requires exact string equality.
// Tokens that fail to parse never match.
func TokenMatches(s Subject, got, want string) bool {
	switch s {
	case Weather:
		gt, err1 := time.Parse("2006-01-02_15:04", got)
		wt, err2 := time.Parse("2006-01-02_15:04", want)
		if err1 != nil || err2 != nil {
			return false
		}
		return within(gt, wt, weatherTolerance)
	case Traffic:
		gt, err1 := time.Parse(windowLayout, windowStart(got))
		wt, err2 := time.Parse(windowLayout, windowStart(want))
		if err1 != nil || err2 != nil {
			return false
		}
		return within(gt, wt, trafficTolerance)
	default:
		return got == want
	}
}

// windowStart extracts the start instant of a traffic window token.
func windowStart(token string) string {
	start, _, _ := strings.Cut(token, "Z/")
	return start
}

func within(got, want time.Time, tol time.Duration) bool {
	d := got.Sub(want)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// LogFileName returns the crawl log file name for a subject at time now.
// Registration subjects rotate per year / per month to match their period
// granularity; everything else rotates daily.
func LogFileName(s Subject, now time.Time) string {
	var stamp string
	switch s {
	case CarRegistrations:
		stamp = now.Format("2006")
	case NewCarRegistrations:
		stamp = now.Format("2006-01")
	default:
		stamp = now.Format("2006-01-02")
	}
	return string(s) + "_" + stamp + ".log"
}
