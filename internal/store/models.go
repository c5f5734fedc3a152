package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region cluster-models
// SaveClusterModel upserts one cluster model.
func (s *Store) SaveClusterModel(ctx context.Context, m *cluster.Model) error {
	blob, err := cluster.Marshal(m)
	if err != nil {
		return fmt.Errorf("save cluster model: %w", err)
	}
	err = s.write(ctx, "save cluster model", func(tx *sql.Tx) error {
		return upsertClusterModel(ctx, tx, m.User, m.Label, blob)
	})
	s.invalidate(m.User, []string{m.Label})
	return err
}

func upsertClusterModel(ctx context.Context, tx *sql.Tx, user, label string, blob []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cluster_models (user_id, label, params, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, label) DO UPDATE SET params = excluded.params, updated_at = excluded.updated_at`,
		user, label, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert cluster model %s/%s: %w", user, label, err)
	}
	return nil
}

// LoadClusterModel returns the stored model for (user, label).
func (s *Store) LoadClusterModel(ctx context.Context, user, label string) (*cluster.Model, error) {
	key := modelKey{user: user, label: label}
	if m, ok := s.models.GetIfPresent(key); ok {
		return cloneClusterModel(m), nil
	}

	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT params FROM cluster_models WHERE user_id = ? AND label = ?`, user, label,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cluster model %s/%s: %w", user, label, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load cluster model %s/%s: %w", user, label, err)
	}
	m, err := cluster.Unmarshal([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("load cluster model %s/%s: %w", user, label, err)
	}
	s.models.Set(key, m)
	return cloneClusterModel(m), nil
}

// ClusterModels returns every cluster model of a user.
func (s *Store) ClusterModels(ctx context.Context, user string) (cluster.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, params FROM cluster_models WHERE user_id = ? ORDER BY label`, user)
	if err != nil {
		return nil, fmt.Errorf("list cluster models: %w", err)
	}
	defer rows.Close()

	var models []*cluster.Model
	for rows.Next() {
		var label, blob string
		if err := rows.Scan(&label, &blob); err != nil {
			return nil, fmt.Errorf("scan cluster model: %w", err)
		}
		m, err := cluster.Unmarshal([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("cluster model %s/%s: %w", user, label, err)
		}
		s.models.Set(modelKey{user: user, label: label}, m)
		models = append(models, cloneClusterModel(m))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cluster.NewSet(models...)
}

func cloneClusterModel(m *cluster.Model) *cluster.Model {
	c := *m
	c.Components = append(c.Components[:0:0], m.Components...)
	c.Durations = append(c.Durations[:0:0], m.Durations...)
	return &c
}

func (s *Store) invalidate(user string, labels []string) {
	for _, l := range labels {
		s.models.Invalidate(modelKey{user: user, label: l})
	}
}

// #endregion cluster-models

// #region transition-models
// SaveTransitionModel upserts one transition model. Its cluster model must
// already be stored.
func (s *Store) SaveTransitionModel(ctx context.Context, m *transition.Model) error {
	blob, err := transition.Marshal(m)
	if err != nil {
		return fmt.Errorf("save transition model: %w", err)
	}
	return s.write(ctx, "save transition model", func(tx *sql.Tx) error {
		return upsertTransitionModel(ctx, tx, m.User, m.Label, blob)
	})
}

func upsertTransitionModel(ctx context.Context, tx *sql.Tx, user, label string, blob []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transition_models (user_id, label, counts, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, label) DO UPDATE SET counts = excluded.counts, updated_at = excluded.updated_at`,
		user, label, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert transition model %s/%s: %w", user, label, err)
	}
	return nil
}

// LoadTransitionModel returns the stored model for (user, label).
func (s *Store) LoadTransitionModel(ctx context.Context, user, label string) (*transition.Model, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT counts FROM transition_models WHERE user_id = ? AND label = ?`, user, label,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition model %s/%s: %w", user, label, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load transition model %s/%s: %w", user, label, err)
	}
	return transition.Unmarshal([]byte(blob))
}

// TransitionModels returns every transition model of a user.
func (s *Store) TransitionModels(ctx context.Context, user string) (transition.Set, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, counts FROM transition_models WHERE user_id = ? ORDER BY label`, user)
	if err != nil {
		return nil, fmt.Errorf("list transition models: %w", err)
	}
	defer rows.Close()

	set := transition.Set{}
	for rows.Next() {
		var label, blob string
		if err := rows.Scan(&label, &blob); err != nil {
			return nil, fmt.Errorf("scan transition model: %w", err)
		}
		m, err := transition.Unmarshal([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("transition model %s/%s: %w", user, label, err)
		}
		set[label] = m
	}
	return set, rows.Err()
}

// #endregion transition-models

// #region replace-models
// ReplaceModels swaps a user's cluster and transition models for a freshly
// computed pair in one transaction.
func (s *Store) ReplaceModels(ctx context.Context, user string, clusters cluster.Set, transitions transition.Set) error {
	clusterBlobs := make(map[string][]byte, len(clusters))
	for label, m := range clusters {
		blob, err := cluster.Marshal(m)
		if err != nil {
			return fmt.Errorf("replace models: %w", err)
		}
		clusterBlobs[label] = blob
	}
	transitionBlobs := make(map[string][]byte, len(transitions))
	for label, m := range transitions {
		if _, ok := clusters[label]; !ok {
			return fmt.Errorf("replace models: transition model %q: %w: no cluster model",
				label, apperrors.ErrMalformedModel)
		}
		blob, err := transition.Marshal(m)
		if err != nil {
			return fmt.Errorf("replace models: %w", err)
		}
		transitionBlobs[label] = blob
	}

	old, err := s.strings(ctx, `SELECT label FROM cluster_models WHERE user_id = ?`, user)
	if err != nil {
		return err
	}
	err = s.write(ctx, "replace models", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transition_models WHERE user_id = ?`, user); err != nil {
			return fmt.Errorf("delete transition models: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_models WHERE user_id = ?`, user); err != nil {
			return fmt.Errorf("delete cluster models: %w", err)
		}
		for _, label := range clusters.Labels() {
			if err := upsertClusterModel(ctx, tx, user, label, clusterBlobs[label]); err != nil {
				return err
			}
		}
		for label, blob := range transitionBlobs {
			if err := upsertTransitionModel(ctx, tx, user, label, blob); err != nil {
				return err
			}
		}
		return nil
	})
	s.invalidate(user, append(old, clusters.Labels()...))
	return err
}

// #endregion replace-models

// #region user-values
// SetUserValue records how much user values label.
func (s *Store) SetUserValue(ctx context.Context, user, label string, value float64) error {
	if user == "" || label == "" {
		return fmt.Errorf("set user value: %w: missing user or label", apperrors.ErrInvalidInput)
	}
	return s.write(ctx, "set user value", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_values (user_id, label, value) VALUES (?, ?, ?)
			 ON CONFLICT(user_id, label) DO UPDATE SET value = excluded.value`,
			user, label, value,
		)
		if err != nil {
			return fmt.Errorf("upsert user value: %w", err)
		}
		return nil
	})
}

// UserValues returns every rating of user with def for unrated activities.
func (s *Store) UserValues(ctx context.Context, user string, def float64) (moment.UserValues, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT label, value FROM user_values WHERE user_id = ?`, user)
	if err != nil {
		return moment.UserValues{}, fmt.Errorf("list user values: %w", err)
	}
	defer rows.Close()

	values := moment.UserValues{Values: map[string]float64{}, Default: def}
	for rows.Next() {
		var label string
		var v float64
		if err := rows.Scan(&label, &v); err != nil {
			return moment.UserValues{}, fmt.Errorf("scan user value: %w", err)
		}
		values.Values[label] = v
	}
	return values, rows.Err()
}

// #endregion user-values
