package policy

import (
	"fmt"
	"regexp"

	"github.com/R3E-Network/resource-broker/internal/alloc"
	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/pathutil"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

// Policy is a node in the FOL AST. Validate is pure over an immutable
// request snapshot (§4.4).
type Policy interface {
	Validate(req *reqio.Request) bool
}

// Atomic is a single comparison between two Constants.
type Atomic struct {
	Op string
	C1 Constant
	C2 Constant
}

// ops recognized by the tokenizer, in the order the spec lists them.
const atomicOps = "<>=~"

func (a *Atomic) Validate(req *reqio.Request) bool {
	v1, err := a.C1.Extract(req)
	if err != nil {
		return false
	}
	v2, err := a.C2.Extract(req)
	if err != nil {
		return false
	}
	s1, s2 := toString(v1), toString(v2)

	switch a.Op {
	case "<":
		return s1 < s2
	case ">":
		return s1 > s2
	case "=":
		return s1 == s2
	case "~":
		re, err := regexp.Compile(s2)
		if err != nil {
			return false
		}
		return re.MatchString(s1)
	default:
		return false
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Membership is true iff the value at Key resolves to one of Allowable.
// Grounded on original_source/backend/policies/equality_policies/
// policies.py's MatchPolicy.validate (`value in allowable`).
type Membership struct {
	Key       string
	Allowable []interface{}
}

func (m *Membership) Validate(req *reqio.Request) bool {
	value, err := pathutil.Lookup(req.RawRequest(), m.Key)
	if err != nil {
		return false
	}
	for _, candidate := range m.Allowable {
		if toString(candidate) == toString(value) {
			return true
		}
	}
	return false
}

// formatRegistry maps a dialect format name to its validator. Only
// "iso8601" is implemented, mirroring
// original_source/backend/policies/request_control_policies/policies.py's
// ArgumentFormatPolicy._formats.
var formatRegistry = map[string]func(string) bool{
	"iso8601": alloc.ValidateISO8601,
}

// FormatCheck is true iff the value at Key is a string satisfying the
// named format. An unknown FormatName always fails, matching the
// original's KeyError -> False behavior.
type FormatCheck struct {
	Key        string
	FormatName string
}

func (fc *FormatCheck) Validate(req *reqio.Request) bool {
	validator, ok := formatRegistry[fc.FormatName]
	if !ok {
		return false
	}
	value, err := pathutil.Lookup(req.RawRequest(), fc.Key)
	if err != nil {
		return false
	}
	s, ok := value.(string)
	if !ok {
		return false
	}
	return validator(s)
}

// And is true iff every child policy is true; evaluation short-circuits
// left to right.
type And struct{ Policies []Policy }

func (a *And) Validate(req *reqio.Request) bool {
	for _, p := range a.Policies {
		if !p.Validate(req) {
			return false
		}
	}
	return true
}

// Or is true iff some child policy is true; evaluation short-circuits
// left to right.
type Or struct{ Policies []Policy }

func (o *Or) Validate(req *reqio.Request) bool {
	for _, p := range o.Policies {
		if p.Validate(req) {
			return true
		}
	}
	return false
}

// Not negates a child policy.
type Not struct{ Inner Policy }

func (n *Not) Validate(req *reqio.Request) bool {
	return !n.Inner.Validate(req)
}

// boundarySet is the set of characters that may sit next to a
// substitutable quantifier variable (§4.3 Substitution).
var boundarySet = map[byte]bool{
	'(': true, ')': true, '<': true, '>': true,
	'^': true, '$': true, '=': true, '~': true,
}

// quantifierBase holds the parts shared by Exists/Forall: the remaining
// (unparsed) sentence text with the bound variable still present, the
// variable character itself, the regex table in scope, and an optional
// fixed domain restriction (nil means "every key in the request").
type quantifierBase struct {
	literal  string
	variable byte
	regulars map[string]string
	bases    []string
}

func (q *quantifierBase) replaceVariable(value string) string {
	var b []byte
	lit := q.literal
	for i := 0; i < len(lit); i++ {
		if lit[i] == q.variable {
			leftOK := i == 0 || boundarySet[lit[i-1]]
			rightOK := i == len(lit)-1 || boundarySet[lit[i+1]]
			if leftOK && rightOK {
				b = append(b, value...)
				continue
			}
		}
		b = append(b, lit[i])
	}
	return string(b)
}

// keysForCheck computes the variable's binding domain (§4.3 Quantifier
// scope expansion).
func (q *quantifierBase) keysForCheck(req *reqio.Request) ([]string, error) {
	if q.bases == nil {
		return pathutil.AllKeys(req.RawRequest(), ""), nil
	}
	var keys []string
	for _, key := range q.bases {
		if len(key) >= 2 && key[len(key)-2:] == ".*" {
			prefix := key[:len(key)-2]
			nested, err := pathutil.Lookup(req.RawRequest(), prefix)
			if err != nil {
				return nil, err
			}
			asMap, ok := nested.(map[string]interface{})
			if !ok {
				return nil, brokererr.New(brokererr.Validation, "%s does not resolve to an object", prefix)
			}
			keys = append(keys, pathutil.AllKeys(asMap, prefix)...)
		} else {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Exists is true iff some binding in the expanded domain makes the
// parsed-after-substitution body true.
type Exists struct {
	quantifierBase
	Factory *Factory
}

func (e *Exists) Validate(req *reqio.Request) bool {
	keys, err := e.keysForCheck(req)
	if err != nil {
		return false
	}
	for _, key := range keys {
		attempt := e.replaceVariable(key)
		p, err := e.Factory.FromLiteral(attempt, e.regulars)
		if err != nil {
			continue
		}
		if p.Validate(req) {
			return true
		}
	}
	return false
}

// Forall requires every binding in the expanded domain to satisfy the
// body.
type Forall struct {
	quantifierBase
	Factory *Factory
}

func (f *Forall) Validate(req *reqio.Request) bool {
	keys, err := f.keysForCheck(req)
	if err != nil {
		return false
	}
	for _, key := range keys {
		attempt := f.replaceVariable(key)
		p, err := f.Factory.FromLiteral(attempt, f.regulars)
		if err != nil {
			return false
		}
		if !p.Validate(req) {
			return false
		}
	}
	return true
}
