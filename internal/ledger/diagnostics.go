package ledger

import "context"

// UserDiagnostics is one row of the read-only reset health report: the live
// balance compared against a recount of open Approved points, plus whether a
// snapshot exists for the period under inspection.
type UserDiagnostics struct {
	UserID             string `json:"user_id"`
	DisplayName        string `json:"display_name"`
	Balance            int64  `json:"balance"`
	OpenOccurrences    int    `json:"open_occurrences"`
	OpenApprovedPoints int64  `json:"open_approved_points"`
	HasSnapshot        bool   `json:"has_snapshot"`
	Consistent         bool   `json:"consistent"`
}

// ResetDiagnostics recomputes, per user, the sum of open Approved points and
// compares it with the live balance. periodID selects which period's
// snapshot presence to report, normally the last closed one.
func (r *Repository) ResetDiagnostics(ctx context.Context, periodID string) ([]UserDiagnostics, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.display_name, u.balance,
		       COUNT(o.id) FILTER (WHERE o.period_id IS NULL) AS open_occurrences,
		       COALESCE(SUM(o.points) FILTER (WHERE o.period_id IS NULL AND o.status = 'Approved'), 0) AS open_approved_points,
		       EXISTS (SELECT 1 FROM balance_snapshots s WHERE s.user_id = u.id AND s.period_id = $1) AS has_snapshot
		FROM users u
		LEFT JOIN occurrences o ON o.user_id = u.id
		GROUP BY u.id
		ORDER BY u.id`, periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var report []UserDiagnostics
	for rows.Next() {
		var d UserDiagnostics
		if err := rows.Scan(&d.UserID, &d.DisplayName, &d.Balance, &d.OpenOccurrences, &d.OpenApprovedPoints, &d.HasSnapshot); err != nil {
			return nil, err
		}
		d.Consistent = d.Balance == d.OpenApprovedPoints
		report = append(report, d)
	}
	return report, rows.Err()
}
