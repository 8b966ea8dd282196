package models

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// AddPlanPeriod returns from + one civil month or year depending on the plan type.
// A day that does not exist in the target month is clamped to that month's last day,
// so Jan 31 + 1 month is Feb 28 (or 29) and Feb 29 + 1 year is Feb 28.
func AddPlanPeriod(from time.Time, planType string) (time.Time, error) {
	switch planType {
	case PlanTypeMonthly:
		return addMonthsClamped(from, 1), nil
	case PlanTypeYearly:
		return addMonthsClamped(from, 12), nil
	default:
		return time.Time{}, fmt.Errorf("unknown plan type %q", planType)
	}
}

func addMonthsClamped(from time.Time, months int) time.Time {
	target := now.With(from).BeginningOfMonth().AddDate(0, months, 0)
	lastDay := now.With(target).EndOfMonth().Day()

	day := from.Day()
	if day > lastDay {
		day = lastDay
	}

	return time.Date(target.Year(), target.Month(), day,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}
