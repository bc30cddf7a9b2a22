package rules

import (
	"encoding/json"
	"fmt"
)

// DecodeIssue reports one entry dropped during lenient decoding. Index
// is the entry's position in the stored array, or -1 when the payload as
// a whole could not be read.
type DecodeIssue struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// DecodeConditions reads a stored condition list. Decoding is lenient:
// entries that are not objects or are missing a field or operator are
// dropped rather than failing the load, so one corrupt entry cannot take
// a whole coverage type's rules offline. Every drop is reported back so
// callers can tell an empty list from a damaged one.
func DecodeConditions(data []byte) ([]RuleCondition, []DecodeIssue) {
	entries, issues := decodeArray(data)
	if entries == nil {
		return []RuleCondition{}, issues
	}

	conds := make([]RuleCondition, 0, len(entries))
	for i, entry := range entries {
		var cond RuleCondition
		if err := json.Unmarshal(entry, &cond); err != nil {
			issues = append(issues, DecodeIssue{Index: i, Reason: fmt.Sprintf("not a condition object: %v", err)})
			continue
		}
		if cond.Field == "" {
			issues = append(issues, DecodeIssue{Index: i, Reason: "missing field"})
			continue
		}
		if cond.Operator == "" {
			issues = append(issues, DecodeIssue{Index: i, Reason: "missing operator"})
			continue
		}
		conds = append(conds, cond)
	}
	return conds, issues
}

// DecodeActions reads a stored action list with the same lenient policy
// as DecodeConditions. An action needs at least a type.
func DecodeActions(data []byte) ([]RuleAction, []DecodeIssue) {
	entries, issues := decodeArray(data)
	if entries == nil {
		return []RuleAction{}, issues
	}

	actions := make([]RuleAction, 0, len(entries))
	for i, entry := range entries {
		var action RuleAction
		if err := json.Unmarshal(entry, &action); err != nil {
			issues = append(issues, DecodeIssue{Index: i, Reason: fmt.Sprintf("not an action object: %v", err)})
			continue
		}
		if action.Type == "" {
			issues = append(issues, DecodeIssue{Index: i, Reason: "missing type"})
			continue
		}
		actions = append(actions, action)
	}
	return actions, issues
}

// decodeArray splits the payload into raw entries. Empty or null input
// is an empty list, not an issue; non-array input is one whole-payload
// issue.
func decodeArray(data []byte) ([]json.RawMessage, []DecodeIssue) {
	if len(data) == 0 || string(data) == "null" {
		return []json.RawMessage{}, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, []DecodeIssue{{Index: -1, Reason: fmt.Sprintf("not a JSON array: %v", err)}}
	}
	return entries, nil
}

// EncodeConditions serializes a condition list to its stored form.
func EncodeConditions(conds []RuleCondition) ([]byte, error) {
	if conds == nil {
		conds = []RuleCondition{}
	}
	data, err := json.Marshal(conds)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conditions: %w", err)
	}
	return data, nil
}

// EncodeActions serializes an action list to its stored form.
func EncodeActions(actions []RuleAction) ([]byte, error) {
	if actions == nil {
		actions = []RuleAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	return data, nil
}
