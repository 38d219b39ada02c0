package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

var quotedToken = regexp.MustCompile(`'([^']*)'`)

// Factory builds Policy trees from stored policy declarations: FOL
// sentence literals (§4.3), the JSON dialect (§4.5), and the built-in
// registry. It is also the org-scoped lookup point for named policies
// persisted under <data_root>/organization_<org>/policies/<name>.json.
type Factory struct {
	DataRoot string
}

// NewFactory builds a Factory rooted at the given data directory.
func NewFactory(dataRoot string) *Factory {
	return &Factory{DataRoot: dataRoot}
}

// Builtins is the registry of built-in named policies (§4.5).
var Builtins = map[string]Policy{
	"FullApproval":   fullApproval{},
	"BasicTimeslot":  mustFOL(`(($data.start~"^.+$")&($data.end~"^.+$"))`),
	"TicketedPolicy": mustFOL(`($data.quantity~"^[0-9]+$")`),
}

type fullApproval struct{}

func (fullApproval) Validate(req *reqio.Request) bool { return true }

func mustFOL(literal string) Policy {
	f := &Factory{}
	p, err := f.FromLiteral(literal, map[string]string{})
	if err != nil {
		panic(fmt.Sprintf("builtin policy literal is invalid: %v", err))
	}
	return p
}

// FromAny dispatches on the shape of a stored policy value (§4.5):
// a string name, a list (conjunction), or a JSON-dialect object.
func (f *Factory) FromAny(value interface{}, org string) (Policy, error) {
	switch v := value.(type) {
	case string:
		return f.fromName(v, org)
	case []interface{}:
		var policies []Policy
		for _, item := range v {
			p, err := f.FromAny(item, org)
			if err != nil {
				return nil, err
			}
			policies = append(policies, p)
		}
		return &And{Policies: policies}, nil
	case map[string]interface{}:
		return f.fromDialect(v)
	case nil:
		return Builtins["FullApproval"], nil
	default:
		return nil, brokererr.New(brokererr.MalformedEntity, "unsupported policy declaration shape %T", value)
	}
}

func (f *Factory) fromName(name, org string) (Policy, error) {
	if org != "" && f.DataRoot != "" {
		path := filepath.Join(f.DataRoot, "organization_"+org, "policies", name+".json")
		if raw, err := os.ReadFile(path); err == nil {
			var decoded interface{}
			if jerr := json.Unmarshal(raw, &decoded); jerr != nil {
				return nil, brokererr.Wrap(brokererr.MalformedEntity, jerr, "malformed stored policy %q", name)
			}
			if obj, ok := decoded.(map[string]interface{}); ok {
				return f.fromDialect(obj)
			}
			return f.FromAny(decoded, org)
		}
	}
	if p, ok := Builtins[name]; ok {
		return p, nil
	}
	return nil, brokererr.New(brokererr.MalformedEntity, "unknown policy %q", name)
}

// fromDialect builds a Policy from a JSON-dialect object (§4.5). Each key
// is a policy kind; the object as a whole is an implicit conjunction.
func (f *Factory) fromDialect(obj map[string]interface{}) (Policy, error) {
	var clauses []Policy
	for kind, args := range obj {
		clause, err := f.dialectClause(kind, args)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return &And{Policies: clauses}, nil
}

func (f *Factory) dialectClause(kind string, args interface{}) (Policy, error) {
	switch kind {
	case "fol":
		literal, ok := args.(string)
		if !ok {
			return nil, brokererr.New(brokererr.MalformedEntity, "fol clause requires a string literal")
		}
		return f.FromLiteral(literal, map[string]string{})
	case "required_headers":
		return f.requiredHeaders(args)
	case "regex":
		return f.keyedClause(args, "~")
	case "match":
		return f.matchClause(args)
	case "formatted_arguments":
		return f.formattedArguments(args)
	case "equality":
		return f.keyedClause(args, "=")
	case "greater_than":
		return f.keyedClause(args, ">")
	case "lesser_than":
		return f.keyedClause(args, "<")
	case "greater_than_eq":
		return f.orEquals(args, ">")
	case "lesser_than_eq":
		return f.orEquals(args, "<")
	case "and":
		return f.combinator(args, true)
	case "or":
		return f.combinator(args, false)
	default:
		return nil, brokererr.New(brokererr.MalformedEntity, "unknown policy kind %q", kind)
	}
}

// requiredHeaders builds a conjunction of "key exists" atomics: each key
// must resolve in the request and be a non-empty string.
func (f *Factory) requiredHeaders(args interface{}) (Policy, error) {
	keys, err := toStringSlice(args)
	if err != nil {
		return nil, err
	}
	regulars := map[string]string{"0": `^.+$`}
	var policies []Policy
	for _, key := range keys {
		policies = append(policies, &Atomic{
			Op: "~",
			C1: NewConstant("$"+key, nil),
			C2: NewConstant("^0", regulars),
		})
	}
	return &And{Policies: policies}, nil
}

// keyedClause builds `$key OP value` atomics for each entry of a
// dotted-path -> literal/regex mapping.
func (f *Factory) keyedClause(args interface{}, op string) (Policy, error) {
	obj, ok := args.(map[string]interface{})
	if !ok {
		return nil, brokererr.New(brokererr.MalformedEntity, "%s clause requires an object of path -> value", op)
	}
	var policies []Policy
	for key, val := range obj {
		regulars := map[string]string{"0": fmt.Sprintf("%v", val)}
		policies = append(policies, &Atomic{
			Op: op,
			C1: NewConstant("$"+key, nil),
			C2: NewConstant("^0", regulars),
		})
	}
	return &And{Policies: policies}, nil
}

// matchClause builds a Membership check per key of a dotted-path ->
// allowable-list mapping (JSON dialect "match").
func (f *Factory) matchClause(args interface{}) (Policy, error) {
	obj, ok := args.(map[string]interface{})
	if !ok {
		return nil, brokererr.New(brokererr.MalformedEntity, "match clause requires an object of path -> allowable list")
	}
	var policies []Policy
	for key, val := range obj {
		allowable, ok := val.([]interface{})
		if !ok {
			return nil, brokererr.New(brokererr.MalformedEntity, "match clause entry %q requires a list of allowable values", key)
		}
		policies = append(policies, &Membership{Key: key, Allowable: allowable})
	}
	return &And{Policies: policies}, nil
}

// formattedArguments builds a FormatCheck per key of a dotted-path ->
// format-name mapping (JSON dialect "formatted_arguments").
func (f *Factory) formattedArguments(args interface{}) (Policy, error) {
	obj, ok := args.(map[string]interface{})
	if !ok {
		return nil, brokererr.New(brokererr.MalformedEntity, "formatted_arguments clause requires an object of path -> format name")
	}
	var policies []Policy
	for key, val := range obj {
		name, ok := val.(string)
		if !ok {
			return nil, brokererr.New(brokererr.MalformedEntity, "formatted_arguments entry %q requires a string format name", key)
		}
		policies = append(policies, &FormatCheck{Key: key, FormatName: name})
	}
	return &And{Policies: policies}, nil
}

func (f *Factory) orEquals(args interface{}, op string) (Policy, error) {
	strict, err := f.keyedClause(args, op)
	if err != nil {
		return nil, err
	}
	eq, err := f.keyedClause(args, "=")
	if err != nil {
		return nil, err
	}
	return &Or{Policies: []Policy{strict, eq}}, nil
}

func (f *Factory) combinator(args interface{}, and bool) (Policy, error) {
	list, ok := args.([]interface{})
	if !ok {
		return nil, brokererr.New(brokererr.MalformedEntity, "and/or clause requires a list of sub-policies")
	}
	var policies []Policy
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, brokererr.New(brokererr.MalformedEntity, "and/or clause entries must be policy objects")
		}
		p, err := f.fromDialect(obj)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	if and {
		return &And{Policies: policies}, nil
	}
	return &Or{Policies: policies}, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, brokererr.New(brokererr.MalformedEntity, "expected a list of strings")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, brokererr.New(brokererr.MalformedEntity, "expected a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}

// ---- FOL sentence literal parser (§4.3) ----

// FromLiteral parses a single FOL sentence string into a Policy tree.
func (f *Factory) FromLiteral(literal string, regulars map[string]string) (Policy, error) {
	if regulars == nil {
		regulars = map[string]string{}
	}
	literal = extractRegulars(literal, regulars)
	literal = normalizeBrackets(literal)
	if literal == "" {
		return nil, brokererr.New(brokererr.MalformedEntity, "empty policy literal")
	}

	negations := 0
	for len(literal) > 0 && literal[0] != '(' {
		switch {
		case literal[0] == '!':
			negations++
			literal = literal[1:]
		case literal[0] == 'A' || literal[0] == 'E':
			return f.parseQuantifier(literal, regulars, negations)
		default:
			return nil, brokererr.New(brokererr.MalformedEntity, "malformed policy literal %q", literal)
		}
	}
	if literal == "" {
		return nil, brokererr.New(brokererr.MalformedEntity, "malformed policy literal: missing sentence body")
	}

	closeIdx, err := matchingBracket(literal, 0)
	if err != nil {
		return nil, err
	}
	inner := literal[1:closeIdx]

	var result Policy
	if isAtomic(inner) {
		result, err = parseAtomic(inner, regulars)
		if err != nil {
			return nil, err
		}
	} else {
		result, err = f.parseBinary(inner, regulars)
		if err != nil {
			return nil, err
		}
	}
	if negations%2 != 0 {
		result = &Not{Inner: result}
	}
	return result, nil
}

func (f *Factory) parseQuantifier(literal string, regulars map[string]string, negations int) (Policy, error) {
	if len(literal) < 2 {
		return nil, brokererr.New(brokererr.MalformedEntity, "malformed quantifier %q", literal)
	}
	variable := literal[1]
	if variable == '(' {
		return nil, brokererr.New(brokererr.MalformedEntity, "quantifier variable is required")
	}

	var bases []string
	rest := literal[2:]
	if len(rest) > 0 && rest[0] == '@' {
		if len(rest) < 2 || rest[1] != '(' {
			return nil, brokererr.New(brokererr.MalformedEntity, "quantifier scope requires a parenthesized key list")
		}
		closeIdx, err := matchingBracket(rest, 1)
		if err != nil {
			return nil, err
		}
		basesStr := rest[1 : closeIdx+1]
		bases = parseBasesList(basesStr)
		rest = rest[closeIdx+1:]
	}

	base := quantifierBase{literal: rest, variable: variable, regulars: regulars, bases: bases}
	var quant Policy
	if literal[0] == 'E' {
		quant = &Exists{quantifierBase: base, Factory: f}
	} else {
		quant = &Forall{quantifierBase: base, Factory: f}
	}
	if negations%2 != 0 {
		quant = &Not{Inner: quant}
	}
	return quant, nil
}

func parseBasesList(s string) []string {
	matches := quotedToken.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func (f *Factory) parseBinary(inner string, regulars map[string]string) (Policy, error) {
	firstOpen := strings.IndexByte(inner, '(')
	if firstOpen < 0 {
		return nil, brokererr.New(brokererr.MalformedEntity, "malformed binary sentence %q", inner)
	}
	firstClose, err := matchingBracket(inner, firstOpen)
	if err != nil {
		return nil, err
	}
	firstLiteral := inner[:firstClose+1]
	if firstClose+1 >= len(inner) {
		return nil, brokererr.New(brokererr.MalformedEntity, "missing binary connective in %q", inner)
	}
	connective := inner[firstClose+1]
	secondLiteral := inner[firstClose+2:]

	firstPolicy, err := f.FromLiteral(firstLiteral, regulars)
	if err != nil {
		return nil, err
	}
	secondPolicy, err := f.FromLiteral(secondLiteral, regulars)
	if err != nil {
		return nil, err
	}

	switch connective {
	case '&':
		return &And{Policies: []Policy{firstPolicy, secondPolicy}}, nil
	case '|':
		return &Or{Policies: []Policy{firstPolicy, secondPolicy}}, nil
	default:
		return nil, brokererr.New(brokererr.MalformedEntity, "invalid connective %q", string(connective))
	}
}

func isAtomic(literal string) bool {
	return !strings.ContainsAny(literal, "([{")
}

// parseAtomic tokenizes on the first occurrence of <, >, =, or ~.
func parseAtomic(literal string, regulars map[string]string) (*Atomic, error) {
	idx := strings.IndexAny(literal, atomicOps)
	if idx < 0 {
		return nil, brokererr.New(brokererr.MalformedEntity, "atomic sentence %q has no comparator", literal)
	}
	c1 := NewConstant(literal[:idx], regulars)
	op := string(literal[idx])
	c2 := NewConstant(literal[idx+1:], regulars)
	return &Atomic{Op: op, C1: c1, C2: c2}, nil
}

// extractRegulars lifts every "..." span into the regulars table, keyed
// by a monotonically increasing numeric suffix, and replaces it in the
// literal with ^<key> (§4.3 stage 1). This intentionally departs from
// the original source's key-naming scheme (which appends "0" to the
// previous key, e.g. "0" -> "00" -> "000") in favor of a plain counter;
// both schemes produce unique keys, only the label differs.
func extractRegulars(literal string, regulars map[string]string) string {
	counter := len(regulars)
	for {
		start := strings.IndexByte(literal, '"')
		if start < 0 {
			break
		}
		end := strings.IndexByte(literal[start+1:], '"')
		if end < 0 {
			break
		}
		end += start + 1
		key := strconv.Itoa(counter)
		counter++
		regulars[key] = literal[start+1 : end]
		literal = literal[:start] + "^" + key + literal[end+1:]
	}
	return literal
}

func normalizeBrackets(literal string) string {
	var b strings.Builder
	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			b.WriteByte('(')
		case '}', ']':
			b.WriteByte(')')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// matchingBracket returns the index of the ')' that balances the '(' at
// startIdx.
func matchingBracket(literal string, startIdx int) (int, error) {
	if startIdx >= len(literal) || literal[startIdx] != '(' {
		return -1, brokererr.New(brokererr.MalformedEntity, "expected '(' at position %d in %q", startIdx, literal)
	}
	level := 0
	for i := startIdx; i < len(literal); i++ {
		switch literal[i] {
		case '(':
			level++
		case ')':
			level--
			if level == 0 {
				return i, nil
			}
		}
	}
	return -1, brokererr.New(brokererr.MalformedEntity, "unbalanced brackets in %q", literal)
}
