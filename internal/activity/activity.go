package activity

import (
	"sort"
	"time"
)

// MinutesPerDay bounds MinutesSinceMidnight to [0, MinutesPerDay).
const MinutesPerDay = 24 * 60

// #region time-of-day
// MinutesSinceMidnight returns the wall-clock minute of the day in the
// timestamp's own location. Seconds are dropped.
func MinutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Minutes is MinutesSinceMidnight of the occurrence start.
func (o Occurrence) Minutes() int {
	return MinutesSinceMidnight(o.Start)
}

// FormatMinutes renders a minute-of-day value as "HH:MM". Fractional values are
// rounded and wrapped into a single day.
func FormatMinutes(m float64) string {
	total := int(m+0.5) % MinutesPerDay
	if total < 0 {
		total += MinutesPerDay
	}
	return time.Date(0, 1, 1, total/60, total%60, 0, 0, time.UTC).Format("15:04")
}

// #endregion time-of-day

// #region sequence-helpers
// Sorted returns a copy of occs ordered by start time. Equal starts keep their
// input order.
func Sorted(occs []Occurrence) []Occurrence {
	out := make([]Occurrence, len(occs))
	copy(out, occs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// GroupByLabel buckets occurrences per label, preserving order inside each bucket.
func GroupByLabel(occs []Occurrence) map[string][]Occurrence {
	groups := make(map[string][]Occurrence)
	for _, o := range occs {
		groups[o.Label] = append(groups[o.Label], o)
	}
	return groups
}

// Labels returns the distinct labels of occs in sorted order.
func Labels(occs []Occurrence) []string {
	seen := make(map[string]struct{})
	var labels []string
	for _, o := range occs {
		if _, ok := seen[o.Label]; ok {
			continue
		}
		seen[o.Label] = struct{}{}
		labels = append(labels, o.Label)
	}
	sort.Strings(labels)
	return labels
}

// SplitChronological cuts a sequence at floor(len*ratio). The first part is the
// training history and the remainder is replayed as the future.
func SplitChronological(occs []Occurrence, ratio float64) Split {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	cut := int(float64(len(occs)) * ratio)
	return Split{
		Training: occs[:cut:cut],
		Testing:  occs[cut:],
	}
}

// #endregion sequence-helpers
