package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Rule order is
// an explicit position column; IDs come from a database sequence so they stay
// monotonic and are never reused, even across processes and deletions.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore. The schema is
// managed by the migrations under migrations/.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = "id, name, condition, actions, active, priority, created_at, updated_at"

// List returns every rule ordered by position.
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.queryRules(`
		SELECT ` + ruleColumns + `
		FROM rules
		ORDER BY position ASC
	`)
}

// ListActive returns active rules ordered by position.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.queryRules(`
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE active = true
		ORDER BY position ASC
	`)
}

func (s *PostgresRuleStore) queryRules(query string) ([]*Rule, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rulesList = append(rulesList, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rulesList, nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
	`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// Add assigns the next sequence-backed ID and appends the rule after the
// current last position.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow(`SELECT nextval('rules_id_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate rule id: %w", err)
	}
	rule.ID = fmt.Sprintf("r%d", seq)

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err = tx.Exec(`
		INSERT INTO rules (id, name, condition, actions, active, priority, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM rules),
			$7, $8)
	`, rule.ID, rule.Name, rule.Condition, pq.Array(actionsToStrings(rule.Actions)),
		rule.Active, nullableInt(rule.Priority), rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return tx.Commit()
}

// Update merges the patch into the stored rule inside a transaction.
func (s *PostgresRuleStore) Update(id string, patch RulePatch) (*Rule, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1
		FOR UPDATE
	`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	if err != nil {
		return nil, err
	}

	applyPatch(rule, patch)
	rule.UpdatedAt = time.Now()

	_, err = tx.Exec(`
		UPDATE rules
		SET name = $1, condition = $2, actions = $3, active = $4, priority = $5, updated_at = $6
		WHERE id = $7
	`, rule.Name, rule.Condition, pq.Array(actionsToStrings(rule.Actions)),
		rule.Active, nullableInt(rule.Priority), rule.UpdatedAt, rule.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return rule, nil
}

// Delete removes a rule. The sequence is untouched, so the ID is never
// handed out again.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}
	return nil
}

// Reorder rewrites position values: named rules first in the given order,
// everything else keeps its relative order after them. Unknown IDs are
// ignored. The whole rewrite happens in one transaction so concurrent
// listings never observe a half-applied order.
func (s *PostgresRuleStore) Reorder(ids []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id FROM rules ORDER BY position ASC FOR UPDATE`)
	if err != nil {
		return fmt.Errorf("failed to lock rules for reorder: %w", err)
	}

	var current []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan rule id: %w", err)
		}
		current = append(current, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("error iterating rule ids: %w", err)
	}
	rows.Close()

	for pos, id := range reorderIDs(current, ids) {
		if _, err := tx.Exec(`UPDATE rules SET position = $1 WHERE id = $2`, pos+1, id); err != nil {
			return fmt.Errorf("failed to reposition rule %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// reorderIDs applies the same placement semantics as reorderRules, on bare
// IDs.
func reorderIDs(current, requested []string) []string {
	known := make(map[string]bool, len(current))
	for _, id := range current {
		known[id] = true
	}

	placed := make(map[string]bool, len(requested))
	next := make([]string, 0, len(current))
	for _, id := range requested {
		if !known[id] || placed[id] {
			continue
		}
		next = append(next, id)
		placed[id] = true
	}
	for _, id := range current {
		if !placed[id] {
			next = append(next, id)
		}
	}
	return next
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var rule Rule
	var actions []string
	var priority sql.NullInt32

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Condition,
		pq.Array(&actions),
		&rule.Active,
		&priority,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.Actions = stringsToActions(actions)
	if priority.Valid {
		p := int(priority.Int32)
		rule.Priority = &p
	}
	return &rule, nil
}

func actionsToStrings(actions []ActionKind) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

func stringsToActions(values []string) []ActionKind {
	out := make([]ActionKind, len(values))
	for i, v := range values {
		out[i] = ActionKind(v)
	}
	return out
}

func nullableInt(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}
