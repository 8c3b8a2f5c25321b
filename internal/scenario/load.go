package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlScenario is the on-disk shape of a scenario definition file. Exit-rule
// guards are declared data (field/op/threshold), not code, so that scenario
// content authors never touch Go.
type yamlScenario struct {
	ID           string          `yaml:"id"`
	Kind         string          `yaml:"kind"`
	StageIDs     []string        `yaml:"stageIds"`
	Stages       []yamlStage     `yaml:"stages"`
	Demographics yamlDemographic `yaml:"demographics"`
}

type yamlDemographic struct {
	AgeYears int     `yaml:"ageYears"`
	WeightKg float64 `yaml:"weightKg"`
	AgeGroup string  `yaml:"ageGroup"`
}

type yamlStage struct {
	ID             string          `yaml:"id"`
	AllowedIntents []string        `yaml:"allowedIntents"`
	Bounds         yamlBounds      `yaml:"bounds"`
	ExitRules      []yamlExitRule  `yaml:"exitRules"`
}

type yamlBounds struct {
	MaxHRDelta   int     `yaml:"maxHRDelta"`
	MaxSpO2Delta int     `yaml:"maxSpO2Delta"`
	MaxTempDelta float64 `yaml:"maxTempDelta"`
}

// yamlExitRule declares a single guard clause. Field selects what to compare
// ("hr", "spo2", "timeInStageSec", "lastAction", "monitor"); Op is one of
// "gte", "lte", "eq". Exactly one of Threshold/Value applies.
type yamlExitRule struct {
	ToStageID string  `yaml:"toStageId"`
	Field     string  `yaml:"field"`
	Op        string  `yaml:"op"`
	Threshold float64 `yaml:"threshold"`
	Value     string  `yaml:"value"`
}

// LoadScenarioFile parses a single scenario definition YAML file.
func LoadScenarioFile(path string) (*ScenarioDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %q: %w", path, err)
	}
	var y yamlScenario
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("scenario: parse %q: %w", path, err)
	}
	return compileScenario(y)
}

// LoadScenarioDir loads every *.yaml file directly under dir, keyed by
// scenario ID.
func LoadScenarioDir(dir string) (map[string]*ScenarioDefinition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario: read dir %q: %w", dir, err)
	}
	out := make(map[string]*ScenarioDefinition, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		def, err := LoadScenarioFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		out[def.ID] = def
	}
	return out, nil
}

func compileScenario(y yamlScenario) (*ScenarioDefinition, error) {
	def := &ScenarioDefinition{
		ID:       y.ID,
		Kind:     ScenarioKind(y.Kind),
		StageIDs: y.StageIDs,
		Stages:   make(map[string]*Definition, len(y.Stages)),
		Demographics: Demographics{
			AgeYears: y.Demographics.AgeYears,
			WeightKg: y.Demographics.WeightKg,
			AgeGroup: AgeGroup(y.Demographics.AgeGroup),
		},
	}
	for _, s := range y.Stages {
		stageDef := &Definition{
			ID:     s.ID,
			Bounds: ValueBounds{MaxHRDelta: s.Bounds.MaxHRDelta, MaxSpO2Delta: s.Bounds.MaxSpO2Delta, MaxTempDelta: s.Bounds.MaxTempDelta},
			AllowedIntents: make(map[AllowedIntentTag]bool, len(s.AllowedIntents)),
		}
		for _, tag := range s.AllowedIntents {
			stageDef.AllowedIntents[AllowedIntentTag(tag)] = true
		}
		for _, r := range s.ExitRules {
			guard, err := compileGuard(r)
			if err != nil {
				return nil, fmt.Errorf("scenario %s stage %s: %w", y.ID, s.ID, err)
			}
			stageDef.ExitRules = append(stageDef.ExitRules, ExitRule{ToStageID: r.ToStageID, Guard: guard})
		}
		def.Stages[s.ID] = stageDef
	}
	return def, nil
}

func compileGuard(r yamlExitRule) (func(*State, time.Duration, string) bool, error) {
	switch r.Field {
	case "timeInStageSec":
		threshold := time.Duration(r.Threshold) * time.Second
		return func(_ *State, timeInStage time.Duration, _ string) bool {
			return compareDuration(timeInStage, r.Op, threshold)
		}, nil
	case "hr":
		return func(s *State, _ time.Duration, _ string) bool {
			return compareFloat(float64(s.Vitals.HR), r.Op, r.Threshold)
		}, nil
	case "spo2":
		return func(s *State, _ time.Duration, _ string) bool {
			return compareFloat(float64(s.Vitals.SpO2), r.Op, r.Threshold)
		}, nil
	case "lastAction":
		return func(_ *State, _ time.Duration, lastAction string) bool {
			return lastAction == r.Value
		}, nil
	case "monitor":
		return func(s *State, _ time.Duration, _ string) bool {
			return s.Interventions.Monitor
		}, nil
	default:
		return nil, fmt.Errorf("unknown exit rule field %q", r.Field)
	}
}

func compareFloat(actual float64, op string, threshold float64) bool {
	switch op {
	case "gte":
		return actual >= threshold
	case "lte":
		return actual <= threshold
	case "eq":
		return actual == threshold
	default:
		return false
	}
}

func compareDuration(actual time.Duration, op string, threshold time.Duration) bool {
	switch op {
	case "gte":
		return actual >= threshold
	case "lte":
		return actual <= threshold
	default:
		return false
	}
}
