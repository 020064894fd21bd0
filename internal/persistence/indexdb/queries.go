package indexdb

// Read helpers for offline inspection (cmd/admin). These run on the
// caller's goroutine against the same single-connection pool.

type CodeCount struct {
	Code  string
	Count int64
}

// RejectionCounts aggregates audit entries per rejection code for one
// space (hex root block), or all spaces when space is empty.
func (s *SQLiteIndex) RejectionCounts(space string) ([]CodeCount, error) {
	q := `SELECT code, COUNT(*) FROM audits GROUP BY code ORDER BY COUNT(*) DESC`
	args := []any{}
	if space != "" {
		q = `SELECT code, COUNT(*) FROM audits WHERE space = ? GROUP BY code ORDER BY COUNT(*) DESC`
		args = append(args, space)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CodeCount
	for rows.Next() {
		var c CodeCount
		if err := rows.Scan(&c.Code, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type JournalStats struct {
	Space    string
	Entries  int64
	Applied  int64
	Rejected int64
	Replays  int64
}

// Stats summarizes the journal per space.
func (s *SQLiteIndex) Stats() ([]JournalStats, error) {
	rows, err := s.db.Query(`SELECT space,
		COUNT(*),
		SUM(applied),
		SUM(CASE WHEN applied = 0 AND replay = 0 THEN 1 ELSE 0 END),
		SUM(replay)
		FROM journal GROUP BY space ORDER BY space`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalStats
	for rows.Next() {
		var st JournalStats
		if err := rows.Scan(&st.Space, &st.Entries, &st.Applied, &st.Rejected, &st.Replays); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type SnapshotInfo struct {
	Space    string
	Applied  uint64
	Path     string
	Rooms    int
	Messages int
	Balances int
}

func (s *SQLiteIndex) Snapshots(space string) ([]SnapshotInfo, error) {
	rows, err := s.db.Query(
		`SELECT space, applied, path, rooms, messages, balances
		 FROM snapshots WHERE space = ? OR ? = '' ORDER BY applied`, space, space)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var si SnapshotInfo
		if err := rows.Scan(&si.Space, &si.Applied, &si.Path, &si.Rooms, &si.Messages, &si.Balances); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}
