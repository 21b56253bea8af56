// SPDX-License-Identifier: Apache-2.0

package state

import (
	"context"
	"fmt"
	"time"
)

// Migration is one row of the migration history of a logical database.
type Migration struct {
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	AppliedAt time.Time `json:"appliedAt"`
}

// History returns all migrations recorded in the history table in the order
// they were applied.
func (s *State) History(ctx context.Context) ([]Migration, error) {
	rows, err := s.conn.QueryContext(ctx,
		fmt.Sprintf("SELECT name, position, applied_at FROM %s ORDER BY position, applied_at",
			s.qualifiedTable()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Name, &m.Position, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("row scan: %w", err)
		}
		entries = append(entries, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
