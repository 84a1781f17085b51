// Package query evaluates post text against a boolean alert query.
//
// A query is loaded once from its JSON form and is read-only afterwards,
// so one Node can be shared by every poll worker.
//
// JSON form: a string is a Literal; an object with a single key is
// {"AND": [...]}, {"OR": [...]} or {"REGEX": "pattern"}. Keys are
// case-insensitive.
package query

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

var ErrInvalidQuery = errors.New("invalid query")

// Node a node of the query tree. The set of implementations is closed.
type Node interface {
	match(text string) bool
}

// And true when every child matches; an empty And is true
type And []Node

// Or true when any child matches; an empty Or is false
type Or []Node

// Literal true when the string occurs in the text, case-sensitive
type Literal string

// Regex true when the pattern matches anywhere in the text
type Regex struct {
	re *regexp.Regexp
}

// NewRegex compile a regex node
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %s", ErrInvalidQuery, pattern, err)
	}

	return &Regex{re: re}, nil
}

// String pattern source
func (r *Regex) String() string {
	return r.re.String()
}

func (n And) match(text string) bool {
	for _, child := range n {
		if !child.match(text) {
			return false
		}
	}
	return true
}

func (n Or) match(text string) bool {
	for _, child := range n {
		if child.match(text) {
			return true
		}
	}
	return false
}

func (n Literal) match(text string) bool {
	return strings.Contains(text, string(n))
}

func (n *Regex) match(text string) bool {
	return n.re.MatchString(text)
}

// Matches report whether text satisfies the query
func Matches(text string, n Node) bool {
	return n.match(text)
}

// Parse parse and validate a query from its JSON form
func Parse(data []byte) (Node, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}

	return parseNode(raw, "$")
}

// MustParse like Parse but panics on error
func MustParse(data string) Node {
	n, err := Parse([]byte(data))
	if err != nil {
		panic(err)
	}
	return n
}

func parseNode(raw interface{}, path string) (Node, error) {
	switch v := raw.(type) {
	case string:
		return Literal(v), nil

	case map[string]interface{}:
		if len(v) != 1 {
			return nil, fmt.Errorf("%w: %s: object must have exactly one key, got %d", ErrInvalidQuery, path, len(v))
		}
		for key, value := range v {
			return parseOperator(strings.ToUpper(key), value, path+"."+key)
		}
	}

	return nil, fmt.Errorf("%w: %s: expected string or object, got %T", ErrInvalidQuery, path, raw)
}

func parseOperator(op string, value interface{}, path string) (Node, error) {
	switch op {
	case "AND", "OR":
		items, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected array, got %T", ErrInvalidQuery, path, value)
		}

		children := make([]Node, 0, len(items))
		for i, item := range items {
			child, err := parseNode(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}

		if op == "AND" {
			return And(children), nil
		}
		return Or(children), nil

	case "REGEX":
		pattern, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s: expected pattern string, got %T", ErrInvalidQuery, path, value)
		}
		return NewRegex(pattern)
	}

	return nil, fmt.Errorf("%w: %s: unknown operator %q", ErrInvalidQuery, path, op)
}
