package rm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/zeu5/crm/formula"
)

// Transition table files hold one edge per line:
//
//	from, to, "formula", reward
//
// optionally wrapped in parentheses, with single or double quotes around the
// formula. Blank lines and lines starting with '#' are skipped. Nothing else
// is accepted; lines are never evaluated as code.

// ParseLine parses a single edge
func ParseLine(line string) (Edge, error) {
	s := &lineScanner{line: line}
	s.skipSpace()
	wrapped := s.accept('(')

	from, err := s.integer()
	if err != nil {
		return Edge{}, err
	}
	if err := s.expect(','); err != nil {
		return Edge{}, err
	}
	to, err := s.integer()
	if err != nil {
		return Edge{}, err
	}
	if err := s.expect(','); err != nil {
		return Edge{}, err
	}
	text, err := s.quoted()
	if err != nil {
		return Edge{}, err
	}
	if err := s.expect(','); err != nil {
		return Edge{}, err
	}
	reward, err := s.number()
	if err != nil {
		return Edge{}, err
	}
	if wrapped {
		if err := s.expect(')'); err != nil {
			return Edge{}, err
		}
	}
	s.skipSpace()
	if !s.done() {
		return Edge{}, s.errorf("unexpected trailing input %q", line[s.pos:])
	}
	return Edge{From: from, To: to, Formula: text, Reward: reward}, nil
}

// Decode reads a transition table
func Decode(r io.Reader) ([]Edge, error) {
	edges := make([]Edge, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo += 1
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		edge, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrConfiguration, lineNo, err)
		}
		edges = append(edges, edge)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return edges, nil
}

// Read decodes a transition table and builds the machine
func Read(r io.Reader, opts ...Option) (*RewardMachine, error) {
	edges, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return New(edges, opts...)
}

// LoadFile builds a machine from a transition table file
func LoadFile(path string, opts ...Option) (*RewardMachine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	defer f.Close()
	rm, err := Read(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return rm, nil
}

// FormatEdge renders an edge in the table grammar. The formula is written in
// canonical form when it parses.
func FormatEdge(e Edge) string {
	text := e.Formula
	if f, err := formula.Parse(e.Formula); err == nil {
		text = f.String()
	}
	return fmt.Sprintf("%d,%d,%q,%s", e.From, e.To, text, strconv.FormatFloat(e.Reward, 'g', -1, 64))
}

// Encode writes edges one per line
func Encode(w io.Writer, edges []Edge) error {
	bw := bufio.NewWriter(w)
	for _, e := range edges {
		if _, err := bw.WriteString(FormatEdge(e) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile stores the machine's transition table
func WriteFile(path string, rm *RewardMachine) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, rm.Edges()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type lineScanner struct {
	line string
	pos  int
}

func (s *lineScanner) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("column %d: %s", s.pos+1, fmt.Sprintf(format, args...))
}

func (s *lineScanner) done() bool {
	return s.pos >= len(s.line)
}

func (s *lineScanner) skipSpace() {
	for !s.done() && (s.line[s.pos] == ' ' || s.line[s.pos] == '\t' || s.line[s.pos] == '\r') {
		s.pos++
	}
}

func (s *lineScanner) accept(c byte) bool {
	s.skipSpace()
	if !s.done() && s.line[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

func (s *lineScanner) expect(c byte) error {
	if !s.accept(c) {
		if s.done() {
			return s.errorf("expected %q, got end of line", c)
		}
		return s.errorf("expected %q, got %q", c, s.line[s.pos])
	}
	return nil
}

// token consumes characters until a delimiter
func (s *lineScanner) token() string {
	s.skipSpace()
	start := s.pos
	for !s.done() && !strings.ContainsRune(",() \t", rune(s.line[s.pos])) {
		s.pos++
	}
	return s.line[start:s.pos]
}

func (s *lineScanner) integer() (int, error) {
	start := s.pos
	tok := s.token()
	v, err := strconv.Atoi(tok)
	if err != nil {
		s.pos = start
		return 0, s.errorf("expected integer state, got %q", tok)
	}
	return v, nil
}

func (s *lineScanner) number() (float64, error) {
	start := s.pos
	tok := s.token()
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		s.pos = start
		return 0, s.errorf("expected reward, got %q", tok)
	}
	return v, nil
}

func (s *lineScanner) quoted() (string, error) {
	s.skipSpace()
	if s.done() || (s.line[s.pos] != '"' && s.line[s.pos] != '\'') {
		return "", s.errorf("expected quoted formula")
	}
	quote := s.line[s.pos]
	s.pos++
	end := strings.IndexByte(s.line[s.pos:], quote)
	if end < 0 {
		return "", s.errorf("unterminated formula")
	}
	text := s.line[s.pos : s.pos+end]
	s.pos += end + 1
	return text, nil
}
