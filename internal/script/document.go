package script

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxFollowUps applies when a question omits max_followups.
const defaultMaxFollowUps = 2

// Threshold units and their length in days.
var unitDays = map[string]float64{
	"day":   1,
	"week":  7,
	"month": 30,
	"year":  365,
}

// UnitDays returns the length of a canonical threshold unit in days.
func UnitDays(unit string) float64 {
	return unitDays[unit]
}

// CanonicalUnit maps "Days", "months", "yr" and similar spellings onto a
// key of the unit table. It returns "" for unknown units.
func CanonicalUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "", "d", "day", "days":
		return "day"
	case "w", "wk", "wks", "week", "weeks":
		return "week"
	case "mo", "mos", "month", "months":
		return "month"
	case "y", "yr", "yrs", "year", "years":
		return "year"
	}
	return ""
}

type document struct {
	Greeting  string        `yaml:"greeting"`
	Closing   string        `yaml:"closing"`
	Questions []rawQuestion `yaml:"questions"`
}

type rawQuestion struct {
	State        int        `yaml:"state"`
	Question     string     `yaml:"question"`
	MaxFollowUps *int       `yaml:"max_followups"`
	Categories   orderedMap `yaml:"response_categories"`
	FollowUps    orderedMap `yaml:"follow_up_instructions"`
	Threshold    *Threshold `yaml:"threshold"`
	Skip         bool       `yaml:"skip_classification"`
}

type entry struct {
	key   string
	value string
}

// orderedMap keeps mapping entries in document order, duplicates included.
type orderedMap []entry

func (m *orderedMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	out := make(orderedMap, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: value for %q must be text", v.Line, k.Value)
		}
		text := v.Value
		if v.Tag == "!!null" {
			text = ""
		}
		out = append(out, entry{key: k.Value, value: text})
	}
	*m = out
	return nil
}

func (r rawQuestion) build() (*Question, error) {
	q := &Question{
		StateID:            r.State,
		Prompt:             strings.TrimSpace(r.Question),
		MaxFollowUps:       defaultMaxFollowUps,
		SkipClassification: r.Skip,
		followUps:          make(map[Label]string),
	}
	if q.Prompt == "" {
		return nil, errors.New("empty prompt")
	}
	if r.MaxFollowUps != nil {
		q.MaxFollowUps = *r.MaxFollowUps
	}
	if q.MaxFollowUps < 0 {
		return nil, fmt.Errorf("max_followups %d is negative", q.MaxFollowUps)
	}

	seen := make(map[Label]bool)
	for _, e := range r.Categories {
		l := normalize(e.key)
		if l == "" || string(l) == DefaultKey {
			return nil, fmt.Errorf("category label %q is reserved or empty", e.key)
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		q.Categories = append(q.Categories, Category{Label: l, Description: strings.TrimSpace(e.value)})
	}

	if q.SkipClassification {
		if r.Threshold != nil {
			return nil, errors.New("threshold on a skip_classification question")
		}
		return q, nil
	}
	if len(q.Categories) == 0 {
		return nil, errors.New("no response_categories")
	}

	for _, e := range r.FollowUps {
		key := normalize(e.key)
		tmpl := strings.TrimSpace(e.value)
		if string(key) == DefaultKey {
			if !q.hasDefault {
				q.defaultReply, q.hasDefault = tmpl, true
			}
			continue
		}
		if key != Irrelevant && !seen[key] {
			return nil, fmt.Errorf("follow-up for undeclared category %q", e.key)
		}
		if _, dup := q.followUps[key]; dup {
			continue
		}
		q.followUps[key] = tmpl
	}

	if !q.hasDefault {
		for _, c := range q.Categories {
			if _, ok := q.followUps[c.Label]; !ok {
				return nil, fmt.Errorf("category %q has no follow-up and no default", c.Label)
			}
		}
		if _, ok := q.followUps[Irrelevant]; !ok {
			return nil, fmt.Errorf("category %q has no follow-up and no default", Irrelevant)
		}
	}

	if r.Threshold != nil {
		t, err := buildThreshold(*r.Threshold, seen)
		if err != nil {
			return nil, err
		}
		q.Threshold = &t
	}
	return q, nil
}

func buildThreshold(t Threshold, declared map[Label]bool) (Threshold, error) {
	if t.Value <= 0 {
		return t, fmt.Errorf("threshold value %v must be positive", t.Value)
	}
	unit := CanonicalUnit(t.Unit)
	if unit == "" {
		return t, fmt.Errorf("unknown threshold unit %q", t.Unit)
	}
	t.Unit = unit
	t.Below = normalize(string(t.Below))
	t.Above = normalize(string(t.Above))
	if !declared[t.Below] || !declared[t.Above] {
		return t, fmt.Errorf("threshold labels %q/%q must be declared categories", t.Below, t.Above)
	}
	if t.Below == t.Above {
		return t, errors.New("threshold below and above labels must differ")
	}
	return t, nil
}
