package rules

import (
	"reflect"
	"testing"
)

func TestDecodeConditionsLenient(t *testing.T) {
	raw := []byte(`[
		{"field": "claim_amount", "operator": "greater_than", "value": 1000},
		{"operator": "equals", "value": "x"},
		{"field": "incident_type", "value": "baggage"},
		"not-an-object",
		{"field": "incident_type", "operator": "equals", "value": "baggage", "logicalOperator": "or"}
	]`)

	conds, issues := DecodeConditions(raw)

	if len(conds) != 2 {
		t.Fatalf("kept %d conditions, want 2: %+v", len(conds), conds)
	}
	if conds[0].Field != "claim_amount" || conds[0].Operator != OpGreaterThan {
		t.Errorf("first kept condition = %+v", conds[0])
	}
	if conds[1].LogicalOperator != LogicalOr {
		t.Errorf("logical_operator not preserved: %+v", conds[1])
	}

	if len(issues) != 3 {
		t.Fatalf("issues = %+v, want 3", issues)
	}
	wantIndexes := []int{1, 2, 3}
	for i, issue := range issues {
		if issue.Index != wantIndexes[i] {
			t.Errorf("issue %d index = %d, want %d", i, issue.Index, wantIndexes[i])
		}
	}
	if issues[0].Reason != "missing field" {
		t.Errorf("issues[0].Reason = %q", issues[0].Reason)
	}
	if issues[1].Reason != "missing operator" {
		t.Errorf("issues[1].Reason = %q", issues[1].Reason)
	}
}

func TestLowercaseJoinEvaluatesAsOr(t *testing.T) {
	raw := []byte(`[
		{"field": "incident_type", "operator": "equals", "value": "baggage"},
		{"field": "incident_type", "operator": "equals", "value": "delay", "logicalOperator": "or"}
	]`)

	conds, issues := DecodeConditions(raw)
	if len(issues) != 0 || len(conds) != 2 {
		t.Fatalf("conds = %+v, issues = %+v", conds, issues)
	}

	ctx := &Context{Answers: map[string]any{"incident_type": "delay"}}
	if !EvaluateConditions(conds, ctx) {
		t.Error("chain joined by lowercase or should pass when only the second condition matches")
	}
}

func TestDecodeActionsLenient(t *testing.T) {
	raw := []byte(`[
		{"type": "show_question", "targetQuestion": "q1"},
		{"targetQuestion": "q2"},
		{"type": "require_document", "document": {"documentType": "receipts", "minFiles": 2}}
	]`)

	actions, issues := DecodeActions(raw)

	if len(actions) != 2 {
		t.Fatalf("kept %d actions, want 2: %+v", len(actions), actions)
	}
	if actions[0].Type != ActionShowQuestion || actions[0].TargetQuestion != "q1" {
		t.Errorf("actions[0] = %+v", actions[0])
	}
	if actions[1].Document == nil || actions[1].Document.MinFiles != 2 {
		t.Errorf("document descriptor not preserved: %+v", actions[1])
	}

	if len(issues) != 1 || issues[0].Index != 1 || issues[0].Reason != "missing type" {
		t.Errorf("issues = %+v", issues)
	}
}

func TestDecodeEmptyAndNullPayloads(t *testing.T) {
	for _, raw := range [][]byte{nil, []byte(""), []byte("null")} {
		conds, issues := DecodeConditions(raw)
		if len(conds) != 0 || len(issues) != 0 {
			t.Errorf("payload %q: conds=%v issues=%v, want both empty", raw, conds, issues)
		}
	}
}

func TestDecodeNonArrayPayload(t *testing.T) {
	conds, issues := DecodeConditions([]byte(`{"field": "x"}`))

	if len(conds) != 0 {
		t.Errorf("conds = %v, want empty", conds)
	}
	if len(issues) != 1 || issues[0].Index != -1 {
		t.Fatalf("issues = %+v, want one whole-payload issue", issues)
	}
}

func TestConditionRoundTrip(t *testing.T) {
	conds := []RuleCondition{
		{Field: "claim_amount", Operator: OpBetween, Value: ListValue(100.0, 500.0), LogicalOperator: LogicalAnd},
		{Field: "incident_date", Operator: OpDateAfter, Value: RelativeValue(RelativeDate{Days: -90, From: AnchorNow})},
		{Field: "notes", Operator: OpIsEmpty, Value: ScalarValue(nil)},
	}

	data, err := EncodeConditions(conds)
	if err != nil {
		t.Fatalf("EncodeConditions: %v", err)
	}

	decoded, issues := DecodeConditions(data)
	if len(issues) != 0 {
		t.Fatalf("well-formed payload reported issues: %+v", issues)
	}
	if !reflect.DeepEqual(decoded, conds) {
		t.Errorf("round trip changed conditions:\n got %+v\nwant %+v", decoded, conds)
	}
}

func TestActionRoundTrip(t *testing.T) {
	actions := []RuleAction{
		{Type: ActionSetValue, TargetQuestion: "region", Value: "EU"},
		{Type: ActionRequireDocument, Document: &DocumentRequirement{
			DocumentType: "receipts", MinFiles: 1, MaxFiles: 3,
			AllowedFormats: []string{"pdf"},
		}},
	}

	data, err := EncodeActions(actions)
	if err != nil {
		t.Fatalf("EncodeActions: %v", err)
	}

	decoded, issues := DecodeActions(data)
	if len(issues) != 0 {
		t.Fatalf("well-formed payload reported issues: %+v", issues)
	}
	if !reflect.DeepEqual(decoded, actions) {
		t.Errorf("round trip changed actions:\n got %+v\nwant %+v", decoded, actions)
	}
}

func TestEncodeNilAsEmptyArray(t *testing.T) {
	data, err := EncodeConditions(nil)
	if err != nil {
		t.Fatalf("EncodeConditions(nil): %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("EncodeConditions(nil) = %s, want []", data)
	}

	data, err = EncodeActions(nil)
	if err != nil {
		t.Fatalf("EncodeActions(nil): %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("EncodeActions(nil) = %s, want []", data)
	}
}
