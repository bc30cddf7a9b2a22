package rules

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/quotelane/rules/internal/logger"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL, scoped to
// one coverage type. Conditions and actions are stored as jsonb blobs in
// the shape the admin UI authored them; reads go through the lenient
// decoders so a corrupt blob degrades to a partial rule instead of
// failing the whole load.
type PostgresRuleStore struct {
	db           *sql.DB
	coverageType string
}

// NewPostgresRuleStore creates a PostgreSQL-backed store for one
// coverage type.
func NewPostgresRuleStore(db *sql.DB, coverageType string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:           db,
		coverageType: coverageType,
	}
}

const ruleColumns = `id, name, rule_type, priority, active, conditions, actions, error_message, created_at, updated_at`

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule *Rule) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1 AND coverage_type = $2)
	`, rule.ID, s.coverageType).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule with ID %s already exists", rule.ID)
	}

	conditions, err := EncodeConditions(rule.Conditions)
	if err != nil {
		return err
	}
	actions, err := EncodeActions(rule.Actions)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.CoverageType = s.coverageType

	_, err = s.db.Exec(`
		INSERT INTO rules (id, coverage_type, name, rule_type, priority, active,
			conditions, actions, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rule.ID, s.coverageType, rule.Name, string(rule.RuleType), rule.Priority,
		rule.Active, conditions, actions, nullString(rule.ErrorMessage),
		rule.CreatedAt, rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (*Rule, error) {
	row := s.db.QueryRow(`
		SELECT `+ruleColumns+`
		FROM rules
		WHERE id = $1 AND coverage_type = $2
	`, id, s.coverageType)

	rule, err := s.scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all rules for the coverage type, newest first.
func (s *PostgresRuleStore) List() ([]*Rule, error) {
	return s.list(`
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE coverage_type = $1
		ORDER BY created_at DESC
	`)
}

// ListActive returns active rules in creation order. The ordering is
// part of the store contract: equal-priority rules evaluate in the order
// they were authored.
func (s *PostgresRuleStore) ListActive() ([]*Rule, error) {
	return s.list(`
		SELECT ` + ruleColumns + `
		FROM rules
		WHERE coverage_type = $1 AND active = true
		ORDER BY created_at ASC
	`)
}

func (s *PostgresRuleStore) list(query string) ([]*Rule, error) {
	rows, err := s.db.Query(query, s.coverageType)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rulesList []*Rule
	for rows.Next() {
		rule, err := s.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rulesList = append(rulesList, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rulesList, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *PostgresRuleStore) scanRule(sc scanner) (*Rule, error) {
	var (
		rule       Rule
		ruleType   string
		conditions []byte
		actions    []byte
		errMsg     sql.NullString
	)

	if err := sc.Scan(&rule.ID, &rule.Name, &ruleType, &rule.Priority,
		&rule.Active, &conditions, &actions, &errMsg,
		&rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, err
	}

	rule.CoverageType = s.coverageType
	rule.RuleType = RuleType(ruleType)
	rule.ErrorMessage = errMsg.String

	var issues []DecodeIssue
	rule.Conditions, issues = DecodeConditions(conditions)
	s.logIssues(rule.ID, "conditions", issues)
	rule.Actions, issues = DecodeActions(actions)
	s.logIssues(rule.ID, "actions", issues)

	return &rule, nil
}

// logIssues surfaces stored entries the lenient decoders dropped.
func (s *PostgresRuleStore) logIssues(ruleID, kind string, issues []DecodeIssue) {
	for _, issue := range issues {
		logger.Warn("dropped malformed stored rule entry",
			"ruleId", ruleID,
			"coverageType", s.coverageType,
			"kind", kind,
			"index", issue.Index,
			"reason", issue.Reason,
		)
	}
}

// Update modifies an existing rule.
func (s *PostgresRuleStore) Update(rule *Rule) error {
	conditions, err := EncodeConditions(rule.Conditions)
	if err != nil {
		return err
	}
	actions, err := EncodeActions(rule.Actions)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE rules
		SET name = $1, rule_type = $2, priority = $3, active = $4,
			conditions = $5, actions = $6, error_message = $7, updated_at = $8
		WHERE id = $9 AND coverage_type = $10
	`, rule.Name, string(rule.RuleType), rule.Priority, rule.Active,
		conditions, actions, nullString(rule.ErrorMessage), rule.UpdatedAt,
		rule.ID, s.coverageType)

	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s not found", rule.ID)
	}

	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM rules
		WHERE id = $1 AND coverage_type = $2
	`, id, s.coverageType)

	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s not found", id)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
