//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quotelane/rules/coverage"
	"github.com/quotelane/rules/rules"

	_ "github.com/lib/pq"
)

// setupTestDB starts a PostgreSQL container and applies the schema.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "rules_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=rules_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_create_rules.up.sql"))
	if err != nil {
		migrationSQL, err = os.ReadFile(filepath.Join("migrations", "000001_create_rules.up.sql"))
		if err != nil {
			t.Fatalf("Failed to read migration file: %v", err)
		}
	}

	if _, err = db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func storedTestRule(id string) *rules.Rule {
	return &rules.Rule{
		ID:       id,
		Name:     "receipts above 1000",
		RuleType: rules.RuleTypeDocument,
		Priority: 50,
		Active:   true,
		Conditions: []rules.RuleCondition{
			{Field: "claim_amount", Operator: rules.OpGreaterThan, Value: rules.ScalarValue(1000.0)},
		},
		Actions: []rules.RuleAction{
			{Type: rules.ActionRequireDocument, TargetQuestion: "receipts"},
		},
		ErrorMessage: "receipts required",
	}
}

func TestPostgresRuleStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	ruleID := uuid.New().String()
	rule := storedTestRule(ruleID)

	if err := store.Add(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}

	retrieved, err := store.Get(ruleID)
	if err != nil {
		t.Fatalf("Failed to get rule: %v", err)
	}
	if retrieved.Name != "receipts above 1000" {
		t.Errorf("Expected name 'receipts above 1000', got '%s'", retrieved.Name)
	}
	if retrieved.CoverageType != "travel" {
		t.Errorf("Expected coverage type 'travel', got '%s'", retrieved.CoverageType)
	}
	if len(retrieved.Conditions) != 1 || retrieved.Conditions[0].Operator != rules.OpGreaterThan {
		t.Errorf("Conditions did not round-trip: %+v", retrieved.Conditions)
	}
	if len(retrieved.Actions) != 1 || retrieved.Actions[0].TargetQuestion != "receipts" {
		t.Errorf("Actions did not round-trip: %+v", retrieved.Actions)
	}
	if retrieved.ErrorMessage != "receipts required" {
		t.Errorf("Expected error message 'receipts required', got '%s'", retrieved.ErrorMessage)
	}

	activeRules, err := store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active rules: %v", err)
	}
	if len(activeRules) != 1 {
		t.Errorf("Expected 1 active rule, got %d", len(activeRules))
	}

	rule.Name = "updated rule"
	rule.Active = false
	if err := store.Update(rule); err != nil {
		t.Fatalf("Failed to update rule: %v", err)
	}

	updated, err := store.Get(ruleID)
	if err != nil {
		t.Fatalf("Failed to get updated rule: %v", err)
	}
	if updated.Name != "updated rule" {
		t.Errorf("Expected name 'updated rule', got '%s'", updated.Name)
	}
	if updated.Active {
		t.Error("Expected rule to be inactive after update")
	}

	activeRules, err = store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active rules: %v", err)
	}
	if len(activeRules) != 0 {
		t.Errorf("Expected 0 active rules, got %d", len(activeRules))
	}

	if err := store.Delete(ruleID); err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}

	if _, err := store.Get(ruleID); err == nil {
		t.Error("Expected error when getting deleted rule, got nil")
	}
}

func TestPostgresRuleStore_RelativeDateRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	ruleID := uuid.New().String()
	rule := &rules.Rule{
		ID: ruleID, Name: "block late report", RuleType: rules.RuleTypeEligibility,
		Priority: 90, Active: true,
		Conditions: []rules.RuleCondition{
			{Field: "incident_date", Operator: rules.OpDateAfter,
				Value: rules.RelativeValue(rules.RelativeDate{Days: -90, From: rules.AnchorNow})},
		},
		Actions: []rules.RuleAction{{Type: rules.ActionBlockSubmission}},
	}

	if err := store.Add(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}

	retrieved, err := store.Get(ruleID)
	if err != nil {
		t.Fatalf("Failed to get rule: %v", err)
	}

	value := retrieved.Conditions[0].Value
	if value.Kind != rules.ValueRelative || value.Relative == nil {
		t.Fatalf("Relative value did not round-trip: %+v", value)
	}
	if value.Relative.Days != -90 || value.Relative.From != rules.AnchorNow {
		t.Errorf("Relative descriptor = %+v", value.Relative)
	}
}

func TestPostgresRuleStore_CoverageTypeIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	travelStore := rules.NewPostgresRuleStore(db, "travel")
	motorStore := rules.NewPostgresRuleStore(db, "motor")

	travelID := uuid.New().String()
	if err := travelStore.Add(storedTestRule(travelID)); err != nil {
		t.Fatalf("Failed to add travel rule: %v", err)
	}

	motorID := uuid.New().String()
	motorRule := storedTestRule(motorID)
	motorRule.Name = "motor rule"
	if err := motorStore.Add(motorRule); err != nil {
		t.Fatalf("Failed to add motor rule: %v", err)
	}

	if _, err := travelStore.Get(motorID); err == nil {
		t.Error("Travel store should not see motor rules")
	}
	if _, err := motorStore.Get(travelID); err == nil {
		t.Error("Motor store should not see travel rules")
	}

	travelRules, err := travelStore.ListActive()
	if err != nil {
		t.Fatalf("Failed to list travel rules: %v", err)
	}
	if len(travelRules) != 1 || travelRules[0].ID != travelID {
		t.Errorf("Expected only the travel rule, got %+v", travelRules)
	}

	motorRules, err := motorStore.ListActive()
	if err != nil {
		t.Fatalf("Failed to list motor rules: %v", err)
	}
	if len(motorRules) != 1 || motorRules[0].Name != "motor rule" {
		t.Errorf("Expected only the motor rule, got %+v", motorRules)
	}
}

func TestPostgresRuleStore_DuplicateRuleID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	rule := storedTestRule(uuid.New().String())
	if err := store.Add(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}
	if err := store.Add(rule); err == nil {
		t.Error("Expected error when adding duplicate rule, got nil")
	}
}

func TestPostgresRuleStore_UpdateNonExistent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	if err := store.Update(storedTestRule(uuid.New().String())); err == nil {
		t.Error("Expected error when updating non-existent rule, got nil")
	}
}

func TestPostgresRuleStore_DeleteNonExistent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	if err := store.Delete(uuid.New().String()); err == nil {
		t.Error("Expected error when deleting non-existent rule, got nil")
	}
}

func TestPostgresRuleStore_LenientDecodeOfCorruptBlob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	ruleID := uuid.New().String()
	_, err := db.Exec(`
		INSERT INTO rules (id, coverage_type, name, rule_type, priority, active,
			conditions, actions, created_at, updated_at)
		VALUES ($1, 'travel', 'partially corrupt', 'conditional', 10, true,
			'[{"field": "trip_type", "operator": "equals", "value": "business"}, {"value": "no field or operator"}]',
			'[{"type": "show_warning", "message": "ok"}, {"message": "typeless"}]',
			now(), now())
	`, ruleID)
	if err != nil {
		t.Fatalf("Failed to insert corrupt rule: %v", err)
	}

	retrieved, err := store.Get(ruleID)
	if err != nil {
		t.Fatalf("Corrupt entries must not fail the load: %v", err)
	}
	if len(retrieved.Conditions) != 1 {
		t.Errorf("Expected 1 kept condition, got %d", len(retrieved.Conditions))
	}
	if len(retrieved.Actions) != 1 {
		t.Errorf("Expected 1 kept action, got %d", len(retrieved.Actions))
	}
}

func TestPostgresRuleStore_ActiveOrdering(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleStore(db, "travel")

	ids := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		rule := storedTestRule(uuid.New().String())
		rule.Name = fmt.Sprintf("rule-%d", i)
		if err := store.Add(rule); err != nil {
			t.Fatalf("Failed to add rule %d: %v", i, err)
		}
		ids = append(ids, rule.ID)
		time.Sleep(10 * time.Millisecond) // distinct created_at
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list rules: %v", err)
	}
	if len(active) != 5 {
		t.Fatalf("Expected 5 rules, got %d", len(active))
	}
	for i, rule := range active {
		if rule.ID != ids[i] {
			t.Errorf("ListActive[%d] = %s, want %s (creation order)", i, rule.ID, ids[i])
		}
	}
}

func TestManager_WithDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	m := coverage.NewManager(db)

	rule := storedTestRule(uuid.New().String())
	rule.CoverageType = "travel"
	if err := m.AddRule(rule); err != nil {
		t.Fatalf("Failed to add rule: %v", err)
	}

	ctx := &rules.Context{Answers: map[string]any{"claim_amount": 1500}}
	res, count, err := m.Evaluate("travel", ctx)
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 rule in the pass, got %d", count)
	}
	if len(res.RequiredDocuments) != 1 {
		t.Errorf("Expected 1 required document, got %+v", res.RequiredDocuments)
	}

	// Mutations must invalidate the cache so the next pass sees them.
	if err := m.DeleteRule("travel", rule.ID); err != nil {
		t.Fatalf("Failed to delete rule: %v", err)
	}
	_, count, err = m.Evaluate("travel", ctx)
	if err != nil {
		t.Fatalf("Failed to evaluate after delete: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 rules after delete, got %d", count)
	}
}
