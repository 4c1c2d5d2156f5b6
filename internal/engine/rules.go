package engine

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/remedystack/calibration-engine/internal/models"
)

// RulePack lets operators attach extra recommendations to reports that
// match declared conditions, on top of the derived ones.
type RulePack struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. All set
// attributes must match for the rule to fire.
type RuleMatch struct {
	Quality           string  `yaml:"quality"`
	IssueType         string  `yaml:"issue_type"`
	MinAbsBucketError float64 `yaml:"min_abs_bucket_error"`
}

// ruleConfigFile is the YAML root structure.
type ruleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRulePack loads rules from the provided path. If path is empty or the
// file does not exist, returns a nil pack.
func NewRulePack(path string, logger *slog.Logger) (*RulePack, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg ruleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RulePack{rules: cfg.Rules, logger: logger}, nil
}

// Recommend returns the recommendations of every rule matching the report.
func (p *RulePack) Recommend(report models.CalibrationReport) []string {
	if p == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range p.rules {
		if rule.Match.Quality != "" && !strings.EqualFold(rule.Match.Quality, string(report.CalibrationQuality)) {
			continue
		}
		if rule.Match.IssueType != "" && !issueTypePresent(rule.Match.IssueType, report) {
			continue
		}
		if rule.Match.MinAbsBucketError > 0 && !anyBucketErrorAtLeast(rule.Match.MinAbsBucketError, report.ByBucket) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

func issueTypePresent(issueType string, report models.CalibrationReport) bool {
	for t := range report.ByIssueType {
		if strings.EqualFold(issueType, string(t)) {
			return true
		}
	}
	return false
}

func anyBucketErrorAtLeast(threshold float64, stats []models.BucketStats) bool {
	for _, b := range stats {
		if math.Abs(b.CalibrationError) >= threshold {
			return true
		}
	}
	return false
}
