package rules

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads automation rules from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListEnabled returns every enabled rule for the given trigger frequency.
// Malformed condition or action documents do not fail the listing; the rule
// comes back inert with the decode reasons in Defects.
func (r *Repository) ListEnabled(ctx context.Context, freq TriggerFrequency) ([]Rule, error) {
	const q = `
		SELECT id, name, is_enabled, trigger_frequency, target_scope, condition, action
		FROM automation_rules
		WHERE is_enabled AND trigger_frequency = $1
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, string(freq))
	if err != nil {
		return nil, fmt.Errorf("rules: list enabled: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			rule      Rule
			frequency string
			condDoc   []byte
			actDoc    []byte
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.IsEnabled, &frequency, &rule.TargetScope, &condDoc, &actDoc); err != nil {
			return nil, fmt.Errorf("rules: scan rule: %w", err)
		}
		rule.Frequency = TriggerFrequency(frequency)
		if rule.Condition, err = DecodeCondition(condDoc); err != nil {
			rule.Defects = append(rule.Defects, err.Error())
		}
		if rule.Action, err = DecodeAction(actDoc); err != nil {
			rule.Defects = append(rule.Defects, err.Error())
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rules: iterate rules: %w", err)
	}
	return out, nil
}
