/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ringflow

import (
	"time"

	"github.com/ringflow/ringflow/config"
)

// InCallingHours reports whether t falls inside the configured daily calling
// window. The window bounds are built from t's own date and location, never
// from the host clock. The end instant is inclusive; one microsecond past it
// is outside. When the configured end is numerically before the start the
// window spans midnight.
func InCallingHours(t time.Time, hours config.CallingHoursConfig) bool {
	year, month, day := t.Date()
	start := time.Date(year, month, day, hours.StartHour, hours.StartMinute, 0, 0, t.Location())
	end := time.Date(year, month, day, hours.EndHour, hours.EndMinute, 0, 0, t.Location())

	if !end.Before(start) {
		return !t.Before(start) && !t.After(end)
	}

	// Wrapped window. An instant before today's start can still sit in the
	// tail of yesterday's window, which ends at today's end time.
	if t.Before(start) {
		return !t.After(end)
	}
	return true
}

// CallWindow returns the dispatch window containing now: the start is now
// with its minute floored to a multiple of intervalMinutes and seconds
// zeroed, the end is one interval later. The window is half-open, so an
// instant exactly at the end belongs to the next window.
func CallWindow(now time.Time, intervalMinutes int) (time.Time, time.Time) {
	if intervalMinutes <= 0 {
		intervalMinutes = 10
	}
	minute := (now.Minute() / intervalMinutes) * intervalMinutes
	start := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	return start, start.Add(time.Duration(intervalMinutes) * time.Minute)
}

// dayBounds returns the local calendar day containing t as a half-open
// interval. AddDate keeps the arithmetic correct across DST changes.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
