package activity

import "time"

// #region occurrence
// Occurrence is one recorded activity of one user. Values are never mutated
// once recorded; sequences are ordered by Start.
type Occurrence struct {
	ID       string    `json:"id,omitempty"`
	User     string    `json:"user"`
	Label    string    `json:"activity"`
	Start    time.Time `json:"start"`
	Duration float64   `json:"duration"` // seconds
}

// #endregion occurrence

// #region split
// Split is a chronological training/testing partition of one sequence.
type Split struct {
	Training []Occurrence
	Testing  []Occurrence
}

// #endregion split
