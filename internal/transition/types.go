package transition

import "fmt"

// #region state
// State is one node of the transition graph: an activity label and one of its
// time-of-day clusters. It is comparable and used directly as a map key.
type State struct {
	Label   string `json:"activity"`
	Cluster int    `json:"cluster"`
}

// String is for display only; it is never parsed back.
func (s State) String() string {
	return fmt.Sprintf("%s#%d", s.Label, s.Cluster)
}

// Less orders states by label, then cluster.
func (s State) Less(o State) bool {
	if s.Label != o.Label {
		return s.Label < o.Label
	}
	return s.Cluster < o.Cluster
}

// #endregion state

// #region cluster-counts
// Counts holds what followed one cluster of an activity.
type Counts struct {
	Next  map[State]int
	Total int // departures observed from this cluster
}

// #endregion cluster-counts

// #region model
// Model is the transition-count model of one activity of one user, indexed by
// cluster.
type Model struct {
	User     string
	Label    string
	Clusters []Counts
}

// NewModel returns an empty model with k clusters.
func NewModel(user, label string, k int) *Model {
	m := &Model{User: user, Label: label, Clusters: make([]Counts, k)}
	for i := range m.Clusters {
		m.Clusters[i].Next = make(map[State]int)
	}
	return m
}

// #endregion model
