package models

import "time"

const DefaultWindowSpan = 7 * 24 * time.Hour

// Window is an inclusive [Start, End] range in unix seconds.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// ResolveWindow returns [start, end] when both are given, otherwise the last 7 days.
func ResolveWindow(now time.Time, start, end *int64) Window {
	if start != nil && end != nil {
		return Window{Start: *start, End: *end}
	}
	e := now.Unix()
	return Window{Start: e - int64(DefaultWindowSpan/time.Second), End: e}
}

func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// Days is the number of whole days covered by the window.
func (w Window) Days() int {
	if w.End <= w.Start {
		return 0
	}
	return int((w.End - w.Start) / 86400)
}
