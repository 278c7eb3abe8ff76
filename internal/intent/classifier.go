// Package intent maps free guest text onto a small set of intents using
// ordered, case-insensitive substring triggers.
package intent

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Intent names understood by the dialog orchestrator.
const (
	Availability = "availability"
	Price        = "price"
	Addons       = "addons"
	Booking      = "booking"
	Fallback     = "fallback"
)

const (
	matchConfidence    = 0.9
	fallbackConfidence = 0.2
)

// ErrInvalidTable is returned when a definitions file is malformed.
var ErrInvalidTable = errors.New("intent: invalid table")

// Definition is one configured intent.
type Definition struct {
	Name     string   `yaml:"name" json:"name"`
	Examples []string `yaml:"examples" json:"examples"`
	Response string   `yaml:"response,omitempty" json:"response,omitempty"`
}

// Result is the outcome of classification.
type Result struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Matched reports whether a trigger fired.
func (r Result) Matched() bool { return r.Name != Fallback }

// Table is an ordered list of definitions; the first definition with a
// matching example wins.
type Table struct {
	defs []Definition
}

// DefaultTable returns the built-in Russian trigger set.
func DefaultTable() *Table {
	return &Table{defs: []Definition{
		{Name: Availability, Examples: []string{"есть домик", "свободные даты", "хочу забронировать", "дата", "заезд", "взросл"}},
		{Name: Price, Examples: []string{"сколько стоит", "цена", "стоимость", "почём"}},
		{Name: Addons, Examples: []string{"баня", "купель", "дополнения", "доп услуги"},
			Response: "Можем предложить баню и купель. Добавить что-то из этого к бронированию?"},
		{Name: Booking, Examples: []string{"оплатить", "бронь", "ссылка", "резерв"}},
		{Name: Fallback,
			Response: "Напишите, пожалуйста, дату прибытия/выезда и количество гостей, чтобы подсказать по свободным домикам."},
	}}
}

// NewTable validates defs and returns a table preserving their order.
func NewTable(defs []Definition) (*Table, error) {
	seen := make(map[string]struct{}, len(defs))
	out := make([]Definition, 0, len(defs))
	for i, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: definition %d has no name", ErrInvalidTable, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: duplicate intent %q", ErrInvalidTable, name)
		}
		seen[name] = struct{}{}

		examples := make([]string, 0, len(d.Examples))
		for _, ex := range d.Examples {
			if ex = strings.ToLower(strings.TrimSpace(ex)); ex != "" {
				examples = append(examples, ex)
			}
		}
		out = append(out, Definition{Name: name, Examples: examples, Response: d.Response})
	}
	return &Table{defs: out}, nil
}

// LoadTable reads definitions from a YAML or JSON file. An empty path or a
// missing file yields the default table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTable(), nil
		}
		return nil, fmt.Errorf("intent: read %s: %w", path, err)
	}

	defs, err := decodeDefinitions(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTable, path, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no intents in %s", ErrInvalidTable, path)
	}
	return NewTable(defs)
}

// fileDefinition also accepts the "intent" key used by older FAQ exports.
type fileDefinition struct {
	Name     string   `yaml:"name"`
	Intent   string   `yaml:"intent"`
	Examples []string `yaml:"examples"`
	Response string   `yaml:"response"`
}

// decodeDefinitions accepts either {"intents": [...]} or a bare list.
func decodeDefinitions(raw []byte) ([]Definition, error) {
	var file struct {
		Intents []fileDefinition `yaml:"intents"`
	}
	var entries []fileDefinition
	if err := yaml.Unmarshal(raw, &file); err == nil && len(file.Intents) > 0 {
		entries = file.Intents
	} else if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	defs := make([]Definition, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Intent
		}
		defs = append(defs, Definition{Name: name, Examples: e.Examples, Response: e.Response})
	}
	return defs, nil
}

// Classify returns the first intent whose example occurs in text, or the
// fallback at low confidence.
func (t *Table) Classify(text string) Result {
	lower := strings.ToLower(text)
	for _, d := range t.defs {
		if d.Name == Fallback {
			continue
		}
		for _, ex := range d.Examples {
			if strings.Contains(lower, ex) {
				return Result{Name: d.Name, Confidence: matchConfidence}
			}
		}
	}
	return Result{Name: Fallback, Confidence: fallbackConfidence}
}

// Response returns the canned reply configured for name, if any.
func (t *Table) Response(name string) (string, bool) {
	for _, d := range t.defs {
		if d.Name == name && d.Response != "" {
			return d.Response, true
		}
	}
	return "", false
}

// Definitions returns a copy of the table in priority order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.defs))
	for i, d := range t.defs {
		out[i] = Definition{Name: d.Name, Examples: append([]string(nil), d.Examples...), Response: d.Response}
	}
	return out
}
