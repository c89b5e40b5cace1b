package changefeed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Filter is an equality predicate on one column of the changed row. The
// feed has no disjunction: "a OR b" is two subscriptions.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

func Eq(column, value string) *Filter {
	return &Filter{Column: column, Value: value}
}

// String renders the filter as column=eq.value.
func (f Filter) String() string {
	return f.Column + "=eq." + f.Value
}

// ParseFilter reads the column=eq.value form.
func ParseFilter(s string) (*Filter, error) {
	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return nil, fmt.Errorf("invalid filter %q: expected column=eq.value", s)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return nil, fmt.Errorf("invalid filter %q: only eq is supported", s)
	}
	return &Filter{Column: column, Value: value}, nil
}

// Matches evaluates the predicate against a JSON row. Scalars are compared
// by their text form, so numeric and boolean columns match "42" or "true".
func (f Filter) Matches(row json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	raw, ok := fields[f.Column]
	if !ok {
		return false
	}
	return scalarText(raw) == f.Value
}

func scalarText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return string(raw)
}

// Request selects events of one table, optionally restricted to some
// operations (all when empty) and one filter.
type Request struct {
	Table      string      `json:"table"`
	Operations []Operation `json:"operations,omitempty"`
	Filter     *Filter     `json:"filter,omitempty"`
}

func (r Request) Validate() error {
	if r.Table == "" {
		return fmt.Errorf("subscription table is required")
	}
	for _, op := range r.Operations {
		if !op.IsValid() {
			return fmt.Errorf("invalid subscription operation: %s", op)
		}
	}
	if r.Filter != nil && r.Filter.Column == "" {
		return fmt.Errorf("subscription filter column is required")
	}
	return nil
}

func (r Request) Matches(e Event) bool {
	if e.Table != r.Table {
		return false
	}
	if len(r.Operations) > 0 {
		found := false
		for _, op := range r.Operations {
			if op == e.Operation {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.Filter != nil && !r.Filter.Matches(e.Row()) {
		return false
	}
	return true
}

func (r Request) String() string {
	var b strings.Builder
	b.WriteString(r.Table)
	if len(r.Operations) > 0 {
		ops := make([]string, len(r.Operations))
		for i, op := range r.Operations {
			ops[i] = string(op)
		}
		b.WriteString("[" + strings.Join(ops, ",") + "]")
	}
	if r.Filter != nil {
		b.WriteString("?" + r.Filter.String())
	}
	return b.String()
}
