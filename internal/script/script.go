// Package script loads and validates the screening question script.
//
// A Script is loaded once at process start and shared read-only by every
// call session. Nothing in this package mutates a Script after Load returns.
package script

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Label is a category label declared by a question.
type Label string

const (
	// Irrelevant is the reserved label for answers that match no declared category.
	Irrelevant Label = "irrelevant"

	// DefaultKey is the follow-up entry used when a category has no explicit template.
	DefaultKey = "default"

	// Placeholder is substituted with the value extracted from the candidate's answer.
	Placeholder = "{extracted_value}"
)

// ErrInvalidScript is returned (wrapped) for every script definition defect.
var ErrInvalidScript = errors.New("invalid script definition")

// Category is one declared answer category of a question.
type Category struct {
	Label       Label
	Description string
}

// Threshold turns a numeric answer into one of two magnitude categories.
type Threshold struct {
	Value float64 `yaml:"value"`
	Unit  string  `yaml:"unit"`
	Below Label   `yaml:"below"`
	Above Label   `yaml:"above"`
}

// Classify returns Below when v is strictly less than the cutoff, Above otherwise.
func (t Threshold) Classify(v float64) Label {
	if v < t.Value {
		return t.Below
	}
	return t.Above
}

// Question is one immutable screening question.
type Question struct {
	StateID            int
	Prompt             string
	Categories         []Category
	MaxFollowUps       int
	Threshold          *Threshold
	SkipClassification bool

	followUps    map[Label]string
	defaultReply string
	hasDefault   bool
}

// Resolve maps a raw classifier label onto the declared label set.
// Unknown labels resolve to Irrelevant, so a question never yields more
// than one category and never one it did not declare.
func (q *Question) Resolve(raw string) Label {
	l := normalize(raw)
	if l == Irrelevant {
		return Irrelevant
	}
	for _, c := range q.Categories {
		if c.Label == l {
			return l
		}
	}
	return Irrelevant
}

// FollowUp returns the follow-up template for a label, falling back to the
// default entry. An empty string means no follow-up.
func (q *Question) FollowUp(l Label) string {
	if tmpl, ok := q.followUps[l]; ok {
		return tmpl
	}
	return q.defaultReply
}

// DefaultFollowUp returns the default follow-up template.
func (q *Question) DefaultFollowUp() string {
	return q.defaultReply
}

// Descriptions returns label -> description pairs in declaration order.
func (q *Question) Descriptions() []Category {
	out := make([]Category, len(q.Categories))
	copy(out, q.Categories)
	return out
}

// Script is the ordered, validated list of questions plus call framing text.
type Script struct {
	Greeting  string
	Closing   string
	questions []*Question
}

// Len returns the number of questions. A session whose position equals Len is terminal.
func (s *Script) Len() int {
	return len(s.questions)
}

// Question returns the question at position i, or nil past the end.
func (s *Script) Question(i int) *Question {
	if i < 0 || i >= len(s.questions) {
		return nil
	}
	return s.questions[i]
}

// Load reads a script from a YAML or JSON file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a script document. The document is either a
// mapping with greeting, closing and questions keys, or a bare question list.
func Parse(data []byte) (*Script, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidScript)
	}

	var doc document
	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&doc.Questions); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	case yaml.MappingNode:
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	default:
		return nil, fmt.Errorf("%w: expected a mapping or a list of questions", ErrInvalidScript)
	}

	return build(doc)
}

func build(doc document) (*Script, error) {
	if len(doc.Questions) == 0 {
		return nil, fmt.Errorf("%w: no questions", ErrInvalidScript)
	}

	s := &Script{
		Greeting:  strings.TrimSpace(doc.Greeting),
		Closing:   strings.TrimSpace(doc.Closing),
		questions: make([]*Question, 0, len(doc.Questions)),
	}

	prev := 0
	for i, raw := range doc.Questions {
		q, err := raw.build()
		if err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrInvalidScript, i+1, err)
		}
		if i > 0 && q.StateID <= prev {
			return nil, fmt.Errorf("%w: question %d: state %d does not follow state %d",
				ErrInvalidScript, i+1, q.StateID, prev)
		}
		prev = q.StateID
		s.questions = append(s.questions, q)
	}
	return s, nil
}

func normalize(raw string) Label {
	return Label(strings.ToLower(strings.TrimSpace(raw)))
}
