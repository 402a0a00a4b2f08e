package config

import (
	"fmt"
	"os"

	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// earningRulesFile is the YAML layout accepted by `bistro rules import`:
//
//	rules:
//	  - name: Silver
//	    min: "20.01"
//	    max: "50"
//	    points: 15
//	    priority: 10
type earningRulesFile struct {
	Rules []earningRuleEntry `yaml:"rules"`
}

type earningRuleEntry struct {
	Name     string  `yaml:"name"`
	Min      string  `yaml:"min"`
	Max      *string `yaml:"max"`
	Points   int     `yaml:"points"`
	Priority *int    `yaml:"priority"`
	Inactive bool    `yaml:"inactive"`
}

// LoadEarningRules reads point earning rules from a YAML file
func LoadEarningRules(path string) ([]models.PointEarningRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read earning rules file: %w", err)
	}
	return ParseEarningRules(raw)
}

// ParseEarningRules decodes and validates YAML earning rules
func ParseEarningRules(raw []byte) ([]models.PointEarningRule, error) {
	var file earningRulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse earning rules: %w", err)
	}

	rules := make([]models.PointEarningRule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		if entry.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i+1)
		}
		if entry.Points <= 0 {
			return nil, fmt.Errorf("rule %q: points must be positive", entry.Name)
		}

		minAmount, err := decimal.NewFromString(entry.Min)
		if err != nil {
			return nil, fmt.Errorf("rule %q: invalid min %q", entry.Name, entry.Min)
		}

		rule := models.PointEarningRule{
			Name:           entry.Name,
			MinOrderAmount: minAmount,
			PointsAwarded:  entry.Points,
			Priority:       100,
			IsActive:       !entry.Inactive,
		}
		if entry.Priority != nil {
			rule.Priority = *entry.Priority
		}
		if entry.Max != nil {
			maxAmount, err := decimal.NewFromString(*entry.Max)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid max %q", entry.Name, *entry.Max)
			}
			if maxAmount.LessThan(minAmount) {
				return nil, fmt.Errorf("rule %q: max is below min", entry.Name)
			}
			rule.MaxOrderAmount = decimal.NewNullDecimal(maxAmount)
		}

		rules = append(rules, rule)
	}

	return rules, nil
}
