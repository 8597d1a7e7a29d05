// Package scoring reconstructs the maximum attainable score of a dataset
// from its score-type name, its JSON parameters and its testcases.
package scoring

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Testcase is the slice of testcase data scoring needs.
type Testcase struct {
	Codename string
	Public   bool
}

// ScoreType knows how a dataset's testcase outcomes combine into a score.
type ScoreType interface {
	Name() string
	// MaxScore is the score of a submission solving every testcase.
	MaxScore() float64
}

// New builds the score type named by a dataset. Parameters is the raw JSON
// stored on the dataset row.
func New(name, parameters string, testcases []Testcase) (ScoreType, error) {
	switch name {
	case "Sum":
		var perTestcase float64
		if err := json.Unmarshal([]byte(parameters), &perTestcase); err != nil {
			return nil, fmt.Errorf("scoring: Sum parameters: %w", err)
		}
		return &sum{perTestcase: perTestcase, count: len(testcases)}, nil
	case "GroupMin":
		groups, err := parseGroups(parameters, testcases)
		if err != nil {
			return nil, err
		}
		return &groupMin{groups: groups}, nil
	default:
		return nil, fmt.Errorf("scoring: unknown score type %q", name)
	}
}

// sum scores each solved testcase a fixed amount.
type sum struct {
	perTestcase float64
	count       int
}

func (s *sum) Name() string { return "Sum" }

func (s *sum) MaxScore() float64 {
	return s.perTestcase * float64(s.count)
}

// group is one subtask: a score multiplier and the testcases it covers.
type group struct {
	multiplier float64
	testcases  []string
}

// groupMin scores each group its multiplier times the minimum outcome of its
// testcases, so a full solve earns the sum of the multipliers.
type groupMin struct {
	groups []group
}

func (g *groupMin) Name() string { return "GroupMin" }

func (g *groupMin) MaxScore() float64 {
	total := 0.0
	for _, grp := range g.groups {
		total += grp.multiplier
	}
	return total
}

// parseGroups reads [[multiplier, selector], ...] where selector is either a
// count of consecutive testcases or a regexp matched against codenames.
func parseGroups(parameters string, testcases []Testcase) ([]group, error) {
	var raw [][]json.RawMessage
	if err := json.Unmarshal([]byte(parameters), &raw); err != nil {
		return nil, fmt.Errorf("scoring: group parameters: %w", err)
	}

	groups := make([]group, 0, len(raw))
	next := 0
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, fmt.Errorf("scoring: group %d: expected [multiplier, selector]", i)
		}
		var multiplier float64
		if err := json.Unmarshal(pair[0], &multiplier); err != nil {
			return nil, fmt.Errorf("scoring: group %d multiplier: %w", i, err)
		}

		var count int
		if err := json.Unmarshal(pair[1], &count); err == nil {
			if next+count > len(testcases) {
				return nil, fmt.Errorf("scoring: group %d selects %d testcases past the end", i, count)
			}
			names := make([]string, 0, count)
			for _, tc := range testcases[next : next+count] {
				names = append(names, tc.Codename)
			}
			next += count
			groups = append(groups, group{multiplier: multiplier, testcases: names})
			continue
		}

		var pattern string
		if err := json.Unmarshal(pair[1], &pattern); err != nil {
			return nil, fmt.Errorf("scoring: group %d selector: %w", i, err)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("scoring: group %d selector: %w", i, err)
		}
		var names []string
		for _, tc := range testcases {
			if re.MatchString(tc.Codename) {
				names = append(names, tc.Codename)
			}
		}
		groups = append(groups, group{multiplier: multiplier, testcases: names})
	}
	return groups, nil
}
