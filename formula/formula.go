// Package formula implements the propositional guards that label reward
// machine edges.
//
// The surface syntax is
//
//	expr   := term ('|' term)*
//	term   := factor ('&' factor)*
//	factor := '!' factor | '(' expr ')' | 'true' | 'false' | identifier
//
// so negation binds tighter than conjunction, which binds tighter than
// disjunction. Identifiers name propositions reported by the environment.
package formula

import (
	"errors"
	"fmt"
	"sort"
)

// ErrEvaluation is matched by every syntax error and by unbound propositions
// under the Strict policy.
var ErrEvaluation = errors.New("formula evaluation error")

// Policy decides how a proposition missing from the assignment evaluates
type Policy int

const (
	// DefaultFalse treats absent propositions as false
	DefaultFalse Policy = iota
	// Strict fails with ErrEvaluation on absent propositions
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "default-false"
}

// Formula is a compiled guard. It is immutable once parsed.
type Formula struct {
	text string
	root node
	vars []string
}

// Parse compiles the formula text
func Parse(text string) (*Formula, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{text: text, tokens: tokens}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &SyntaxError{Formula: text, Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok.kind)}
	}
	varSet := make(map[string]struct{})
	root.collect(varSet)
	return &Formula{
		text: text,
		root: root,
		vars: sortedKeys(varSet),
	}, nil
}

// MustParse is Parse for formulas known at compile time
func MustParse(text string) *Formula {
	f, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return f
}

// Variables returns every proposition name appearing in the raw formula text,
// sorted. The constants true and false are not propositions.
func Variables(text string) ([]string, error) {
	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}
	varSet := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.kind == tokIdent && !isConstant(tok.text) {
			varSet[tok.text] = struct{}{}
		}
	}
	return sortedKeys(varSet), nil
}

// Text returns the formula as it was written
func (f *Formula) Text() string {
	return f.text
}

// String returns the canonical rendering, spacing normalized and only the
// parentheses precedence requires
func (f *Formula) String() string {
	return f.root.String()
}

// Variables returns the sorted free propositions of the formula
func (f *Formula) Variables() []string {
	out := make([]string, len(f.vars))
	copy(out, f.vars)
	return out
}

// Eval evaluates the formula against the assignment
func (f *Formula) Eval(props map[string]bool, policy Policy) (bool, error) {
	return f.root.eval(props, policy)
}

func isConstant(name string) bool {
	switch name {
	case "true", "True", "false", "False":
		return true
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type parser struct {
	text   string
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNot:
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &SyntaxError{Formula: p.text, Pos: closing.pos, Msg: fmt.Sprintf("expected ')', got %s", closing.kind)}
		}
		return inner, nil
	case tokIdent:
		switch tok.text {
		case "true", "True":
			return constNode(true), nil
		case "false", "False":
			return constNode(false), nil
		}
		return varNode(tok.text), nil
	}
	return nil, &SyntaxError{Formula: p.text, Pos: tok.pos, Msg: fmt.Sprintf("expected proposition, got %s", tok.kind)}
}
