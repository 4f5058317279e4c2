package formula

import "fmt"

const (
	precOr = iota + 1
	precAnd
	precNot
)

type node interface {
	eval(props map[string]bool, policy Policy) (bool, error)
	collect(vars map[string]struct{})
	prec() int
	String() string
}

type constNode bool

func (c constNode) eval(map[string]bool, Policy) (bool, error) { return bool(c), nil }
func (c constNode) collect(map[string]struct{})                {}
func (c constNode) prec() int                                  { return precNot }
func (c constNode) String() string {
	if c {
		return "true"
	}
	return "false"
}

type varNode string

func (v varNode) eval(props map[string]bool, policy Policy) (bool, error) {
	val, ok := props[string(v)]
	if !ok && policy == Strict {
		return false, fmt.Errorf("%w: unbound proposition %q", ErrEvaluation, string(v))
	}
	return val, nil
}

func (v varNode) collect(vars map[string]struct{}) { vars[string(v)] = struct{}{} }
func (v varNode) prec() int                        { return precNot }
func (v varNode) String() string                   { return string(v) }

type notNode struct {
	operand node
}

func (n *notNode) eval(props map[string]bool, policy Policy) (bool, error) {
	val, err := n.operand.eval(props, policy)
	if err != nil {
		return false, err
	}
	return !val, nil
}

func (n *notNode) collect(vars map[string]struct{}) { n.operand.collect(vars) }
func (n *notNode) prec() int                        { return precNot }
func (n *notNode) String() string                   { return "!" + wrap(n.operand, precNot) }

// Both operands are always evaluated so that an unbound proposition is
// reported regardless of the other operand's value.
type andNode struct {
	left, right node
}

func (n *andNode) eval(props map[string]bool, policy Policy) (bool, error) {
	l, err := n.left.eval(props, policy)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(props, policy)
	if err != nil {
		return false, err
	}
	return l && r, nil
}

func (n *andNode) collect(vars map[string]struct{}) {
	n.left.collect(vars)
	n.right.collect(vars)
}
func (n *andNode) prec() int { return precAnd }
func (n *andNode) String() string {
	return wrap(n.left, precAnd) + " & " + wrap(n.right, precAnd)
}

type orNode struct {
	left, right node
}

func (n *orNode) eval(props map[string]bool, policy Policy) (bool, error) {
	l, err := n.left.eval(props, policy)
	if err != nil {
		return false, err
	}
	r, err := n.right.eval(props, policy)
	if err != nil {
		return false, err
	}
	return l || r, nil
}

func (n *orNode) collect(vars map[string]struct{}) {
	n.left.collect(vars)
	n.right.collect(vars)
}
func (n *orNode) prec() int { return precOr }
func (n *orNode) String() string {
	return wrap(n.left, precOr) + " | " + wrap(n.right, precOr)
}

func wrap(n node, parent int) string {
	if n.prec() < parent {
		return "(" + n.String() + ")"
	}
	return n.String()
}
