// Package policy implements the first-order-logic policy sentence parser
// and evaluator (spec §4.3-§4.5), grounded on
// original_source/backend/policyv2/policy.go.
package policy

import (
	"strings"

	"github.com/R3E-Network/resource-broker/internal/brokererr"
	"github.com/R3E-Network/resource-broker/internal/pathutil"
	"github.com/R3E-Network/resource-broker/internal/reqio"
)

// Constant resolves to a value when a policy is evaluated against a
// request: a dotted request lookup ($x.y), a regex-table lookup (^k),
// or a literal string.
type Constant struct {
	literal  string
	regulars map[string]string
}

// NewConstant trims the literal and records the table of regexes
// extracted during parsing.
func NewConstant(literal string, regulars map[string]string) Constant {
	return Constant{literal: strings.TrimSpace(literal), regulars: regulars}
}

func (c Constant) String() string { return c.literal }

// Extract resolves the constant against a request.
func (c Constant) Extract(req *reqio.Request) (interface{}, error) {
	if c.literal == "" {
		return "", nil
	}
	switch c.literal[0] {
	case '$':
		return pathutil.Lookup(req.RawRequest(), c.literal[1:])
	case '^':
		val, ok := c.regulars[c.literal[1:]]
		if !ok {
			return nil, brokererr.New(brokererr.Validation, "unknown regex table key %q", c.literal[1:])
		}
		return val, nil
	default:
		return c.literal, nil
	}
}
