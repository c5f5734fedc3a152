// Package transition accumulates which (activity, cluster) state follows which.
package transition

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
)

// #region observe
// Observe records one departure from cluster c towards next.
func (m *Model) Observe(c int, next State) error {
	if c < 0 || c >= len(m.Clusters) {
		return fmt.Errorf("observe %q cluster %d: %w: model has %d clusters",
			m.Label, c, apperrors.ErrMalformedModel, len(m.Clusters))
	}
	counts := &m.Clusters[c]
	if counts.Next == nil {
		counts.Next = make(map[State]int)
	}
	counts.Next[next]++
	counts.Total++
	return nil
}

// Probabilities returns count/total for every successor of cluster c. It is
// empty when the cluster never departed.
func (m *Model) Probabilities(c int) map[State]float64 {
	if c < 0 || c >= len(m.Clusters) || m.Clusters[c].Total == 0 {
		return map[State]float64{}
	}
	counts := m.Clusters[c]
	out := make(map[State]float64, len(counts.Next))
	for s, n := range counts.Next {
		out[s] = float64(n) / float64(counts.Total)
	}
	return out
}

// Successors returns the successor states of cluster c in sorted order.
func (m *Model) Successors(c int) []State {
	if c < 0 || c >= len(m.Clusters) {
		return nil
	}
	out := make([]State, 0, len(m.Clusters[c].Next))
	for s := range m.Clusters[c].Next {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Clone deep-copies the model.
func (m *Model) Clone() *Model {
	c := &Model{User: m.User, Label: m.Label, Clusters: make([]Counts, len(m.Clusters))}
	for i, counts := range m.Clusters {
		next := make(map[State]int, len(counts.Next))
		for s, n := range counts.Next {
			next[s] = n
		}
		c.Clusters[i] = Counts{Next: next, Total: counts.Total}
	}
	return c
}

// #endregion observe

// #region set
// Set indexes one user's transition models by activity label. It is built once
// by Build; Advance is the only mutation.
type Set map[string]*Model

// Clone deep-copies every model.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for l, m := range s {
		out[l] = m.Clone()
	}
	return out
}

// #endregion set

// #region build
// Build walks a user's sequence and counts, for every consecutive pair, the
// transition from the current state to the next one. Every cluster model gets
// a transition model, even if it never departed. seq must already be ordered
// by start time. Prior counts are never merged in.
func Build(seq []activity.Occurrence, clusters cluster.Set) (Set, error) {
	set := make(Set, len(clusters))
	for label, cm := range clusters {
		set[label] = NewModel(cm.User, label, cm.K())
	}

	states := make([]State, len(seq))
	for i, o := range seq {
		c, err := clusters.Assign(o)
		if err != nil {
			return nil, fmt.Errorf("build transitions: %w", err)
		}
		states[i] = State{Label: o.Label, Cluster: c}
	}

	for i := 0; i+1 < len(states); i++ {
		cur := states[i]
		if err := set[cur.Label].Observe(cur.Cluster, states[i+1]); err != nil {
			return nil, fmt.Errorf("build transitions: %w", err)
		}
	}
	return set, nil
}

// Advance applies one observed step last -> next to the model of last's
// activity without a rebuild.
func (s Set) Advance(clusters cluster.Set, last, next activity.Occurrence) error {
	lastCluster, err := clusters.Assign(last)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	nextCluster, err := clusters.Assign(next)
	if err != nil {
		return fmt.Errorf("advance: %w", err)
	}
	m, ok := s[last.Label]
	if !ok {
		return fmt.Errorf("advance %q: %w: no transition model", last.Label, apperrors.ErrUnknownState)
	}
	return m.Observe(lastCluster, State{Label: next.Label, Cluster: nextCluster})
}

// #endregion build

// #region blob
type wireEdge struct {
	Label   string `json:"activity"`
	Cluster int    `json:"cluster"`
	Count   int    `json:"count"`
}

type wireCounts struct {
	Total int        `json:"total"`
	Next  []wireEdge `json:"next"`
}

type wireModel struct {
	User     string       `json:"user"`
	Label    string       `json:"activity"`
	Clusters []wireCounts `json:"clusters"`
}

// MarshalJSON writes successors as a sorted list since State keys are structs.
func (m *Model) MarshalJSON() ([]byte, error) {
	w := wireModel{User: m.User, Label: m.Label, Clusters: make([]wireCounts, len(m.Clusters))}
	for i := range m.Clusters {
		wc := wireCounts{Total: m.Clusters[i].Total, Next: []wireEdge{}}
		for _, s := range m.Successors(i) {
			wc.Next = append(wc.Next, wireEdge{Label: s.Label, Cluster: s.Cluster, Count: m.Clusters[i].Next[s]})
		}
		w.Clusters[i] = wc
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a model written by MarshalJSON.
func (m *Model) UnmarshalJSON(data []byte) error {
	var w wireModel
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := NewModel(w.User, w.Label, len(w.Clusters))
	for i, wc := range w.Clusters {
		out.Clusters[i].Total = wc.Total
		for _, e := range wc.Next {
			out.Clusters[i].Next[State{Label: e.Label, Cluster: e.Cluster}] = e.Count
		}
	}
	*m = *out
	return nil
}

// Validate checks counts are non-negative and totals match.
func (m *Model) Validate() error {
	if m.Label == "" || len(m.Clusters) == 0 {
		return fmt.Errorf("transition model %q: %w: missing activity or clusters", m.Label, apperrors.ErrMalformedModel)
	}
	for i, counts := range m.Clusters {
		sum := 0
		for s, n := range counts.Next {
			if n < 0 || s.Cluster < 0 {
				return fmt.Errorf("transition model %q cluster %d: %w: bad edge %s=%d",
					m.Label, i, apperrors.ErrMalformedModel, s, n)
			}
			sum += n
		}
		if sum != counts.Total {
			return fmt.Errorf("transition model %q cluster %d: %w: total %d != sum %d",
				m.Label, i, apperrors.ErrMalformedModel, counts.Total, sum)
		}
	}
	return nil
}

// Marshal serialises m to its portable blob.
func Marshal(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Unmarshal restores and validates a model blob.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode transition model: %w: %v", apperrors.ErrMalformedModel, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// CheckAgainst verifies every referenced state exists in clusters.
func (s Set) CheckAgainst(clusters cluster.Set) error {
	for label, m := range s {
		cm, ok := clusters[label]
		if !ok {
			return fmt.Errorf("transition model %q: %w: no cluster model", label, apperrors.ErrMalformedModel)
		}
		if len(m.Clusters) != cm.K() {
			return fmt.Errorf("transition model %q: %w: %d clusters, cluster model has %d",
				label, apperrors.ErrMalformedModel, len(m.Clusters), cm.K())
		}
		for _, counts := range m.Clusters {
			for st := range counts.Next {
				target, ok := clusters[st.Label]
				if !ok || st.Cluster >= target.K() {
					return fmt.Errorf("transition model %q: %w: successor %s has no cluster",
						label, apperrors.ErrMalformedModel, st)
				}
			}
		}
	}
	return nil
}

// #endregion blob
