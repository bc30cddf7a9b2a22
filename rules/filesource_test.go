package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRulesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestLoadRulesFile(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - id: receipts-above-1000
    coverageType: travel
    name: receipts above 1000
    ruleType: document
    priority: 50
    conditions:
      - field: claim_amount
        operator: greater_than
        value: 1000
    actions:
      - type: require_document
        targetQuestion: receipts
  - id: block-late-report
    coverageType: travel
    name: block late report
    ruleType: eligibility
    priority: 90
    active: false
    errorMessage: incident too old
    conditions:
      - field: incident_date
        operator: date_after
        value:
          type: relative
          days: -90
          from: now
    actions:
      - type: block_submission
`)

	loaded, err := LoadRulesFile(path)
	if err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d rules, want 2", len(loaded))
	}

	first := loaded[0]
	if first.ID != "receipts-above-1000" || first.RuleType != RuleTypeDocument {
		t.Errorf("first rule = %+v", first)
	}
	if !first.Active {
		t.Error("active should default to true when omitted")
	}
	if len(first.Conditions) != 1 || first.Conditions[0].Operator != OpGreaterThan {
		t.Errorf("conditions = %+v", first.Conditions)
	}
	if len(first.Actions) != 1 || first.Actions[0].TargetQuestion != "receipts" {
		t.Errorf("actions = %+v", first.Actions)
	}

	second := loaded[1]
	if second.Active {
		t.Error("explicit active: false not honored")
	}
	if second.ErrorMessage != "incident too old" {
		t.Errorf("ErrorMessage = %q", second.ErrorMessage)
	}
	cond := second.Conditions[0]
	if cond.Value.Kind != ValueRelative || cond.Value.Relative == nil {
		t.Fatalf("relative value not decoded: %+v", cond.Value)
	}
	if cond.Value.Relative.Days != -90 || cond.Value.Relative.From != AnchorNow {
		t.Errorf("relative descriptor = %+v", cond.Value.Relative)
	}
}

func TestLoadRulesFileSkipsAndDrops(t *testing.T) {
	path := writeRulesFile(t, `
rules:
  - name: no id here
    ruleType: validation
  - id: partial
    name: partially valid
    ruleType: validation
    conditions:
      - field: email
        operator: is_empty
      - operator: is_empty
    actions:
      - type: validate
        message: email is required
      - message: typeless entry
`)

	loaded, err := LoadRulesFile(path)
	if err != nil {
		t.Fatalf("LoadRulesFile: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d rules, want 1 (id-less rule skipped)", len(loaded))
	}

	rule := loaded[0]
	if len(rule.Conditions) != 1 {
		t.Errorf("kept %d conditions, want 1", len(rule.Conditions))
	}
	if len(rule.Actions) != 1 {
		t.Errorf("kept %d actions, want 1", len(rule.Actions))
	}
}

func TestLoadRulesFileMissing(t *testing.T) {
	if _, err := LoadRulesFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestLoadRulesFileMalformedYAML(t *testing.T) {
	path := writeRulesFile(t, "rules: [not closed")

	if _, err := LoadRulesFile(path); err == nil {
		t.Error("malformed YAML should fail")
	}
}
