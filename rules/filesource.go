package rules

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quotelane/rules/internal/logger"
)

// ruleFile is the on-disk shape of a rule seed file.
type ruleFile struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID           string `yaml:"id"`
	CoverageType string `yaml:"coverageType"`
	Name         string `yaml:"name"`
	RuleType     string `yaml:"ruleType"`
	Priority     int    `yaml:"priority"`
	Active       *bool  `yaml:"active"`
	ErrorMessage string `yaml:"errorMessage"`
	Conditions   []any  `yaml:"conditions"`
	Actions      []any  `yaml:"actions"`
}

// LoadRulesFile reads rule definitions from a YAML file. It backs the
// development mode of the server, where no database is configured and
// rules are seeded from disk. The condition and action entries go
// through the same lenient decoders as stored blobs, so a bad entry is
// dropped with a logged reason, and a rule without an id or name is
// skipped entirely.
func LoadRulesFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	var loaded []*Rule
	for i, doc := range file.Rules {
		if doc.ID == "" || doc.Name == "" {
			logger.Warn("skipping rule without id or name",
				"file", path, "index", i)
			continue
		}

		rule := &Rule{
			ID:           doc.ID,
			CoverageType: doc.CoverageType,
			Name:         doc.Name,
			RuleType:     RuleType(doc.RuleType),
			Priority:     doc.Priority,
			Active:       doc.Active == nil || *doc.Active,
			ErrorMessage: doc.ErrorMessage,
		}

		var issues []DecodeIssue
		rule.Conditions, issues = decodeYAMLEntries(doc.Conditions, DecodeConditions)
		logFileIssues(path, doc.ID, "conditions", issues)
		rule.Actions, issues = decodeYAMLEntries(doc.Actions, DecodeActions)
		logFileIssues(path, doc.ID, "actions", issues)

		loaded = append(loaded, rule)
	}

	return loaded, nil
}

// decodeYAMLEntries funnels YAML-decoded entries through the JSON
// decoders so file loading and database loading share one validation
// path.
func decodeYAMLEntries[T any](entries []any, decode func([]byte) ([]T, []DecodeIssue)) ([]T, []DecodeIssue) {
	if len(entries) == 0 {
		return []T{}, nil
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return []T{}, []DecodeIssue{{Index: -1, Reason: fmt.Sprintf("entries not representable as JSON: %v", err)}}
	}
	return decode(data)
}

func logFileIssues(path, ruleID, kind string, issues []DecodeIssue) {
	for _, issue := range issues {
		logger.Warn("dropped malformed rule entry from file",
			"file", path,
			"ruleId", ruleID,
			"kind", kind,
			"index", issue.Index,
			"reason", issue.Reason,
		)
	}
}
