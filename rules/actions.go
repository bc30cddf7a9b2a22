package rules

import "fmt"

// ApplyAction merges one fired action into the accumulating result.
// Applications are idempotent-additive: applying the same show/hide
// twice leaves membership unchanged, and a later show wins over an
// earlier hide (and vice versa).
func ApplyAction(res *Result, rule *Rule, action RuleAction) {
	switch action.Type {
	case ActionShowQuestion:
		if action.TargetQuestion != "" {
			res.show(action.TargetQuestion)
		}

	case ActionHideQuestion:
		if action.TargetQuestion != "" {
			res.hide(action.TargetQuestion)
		}

	case ActionValidate:
		res.Passed = false
		res.Errors = append(res.Errors, actionMessage(rule, action))

	case ActionRequireDocument:
		res.RequiredDocuments = append(res.RequiredDocuments, documentFor(action))

	case ActionBlockSubmission:
		msg := actionMessage(rule, action)
		res.BlockedSubmission = true
		res.BlockReason = msg
		res.Errors = append(res.Errors, msg)

	case ActionSetValue:
		if action.TargetQuestion != "" && action.Value != nil {
			res.FieldValues[action.TargetQuestion] = action.Value
		}

	case ActionShowWarning:
		// Warnings inform the applicant without failing validation.
		res.Warnings = append(res.Warnings, actionMessage(rule, action))

	case ActionCalculateValue:
		// Reserved. Stored rules may carry it; it applies nothing.
	}
}

// actionMessage picks the action's own message, falling back to the
// rule's default error message, then to a generic one naming the rule.
func actionMessage(rule *Rule, action RuleAction) string {
	if action.Message != "" {
		return action.Message
	}
	if rule != nil && rule.ErrorMessage != "" {
		return rule.ErrorMessage
	}
	name := ""
	if rule != nil {
		name = rule.Name
	}
	return fmt.Sprintf("rule %q failed", name)
}

// documentFor builds the document requirement for a require_document
// action, defaulting the type to the target question id when no explicit
// descriptor is attached.
func documentFor(action RuleAction) DocumentRequirement {
	var doc DocumentRequirement
	if action.Document != nil {
		doc = *action.Document
		doc.AllowedFormats = append([]string(nil), action.Document.AllowedFormats...)
	}
	if doc.DocumentType == "" {
		doc.DocumentType = action.TargetQuestion
	}
	return doc.withDefaults()
}
