// Package label parses label expressions and evaluates them against the label
// atoms carried by a node.
//
// Supported syntax, by increasing precedence:
//
//	a || b     either side matches
//	a && b     both sides match
//	!a         negation
//	(a)        grouping
//	a, "a b"   atoms, optionally double-quoted
package label

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// Expression is a parsed label expression.
type Expression interface {
	// Matches reports whether the expression holds for the given set of atoms.
	Matches(atoms ...string) bool
	String() string
}

type atom string

func (a atom) Matches(atoms ...string) bool { return lo.Contains(atoms, string(a)) }
func (a atom) String() string {
	if strings.ContainsFunc(string(a), isSpecial) {
		return fmt.Sprintf("%q", string(a))
	}
	return string(a)
}

type not struct{ expr Expression }

func (n not) Matches(atoms ...string) bool { return !n.expr.Matches(atoms...) }
func (n not) String() string { return "!" + n.expr.String() }

type and struct{ left, right Expression }

func (a and) Matches(atoms ...string) bool { return a.left.Matches(atoms...) && a.right.Matches(atoms...) }
func (a and) String() string { return fmt.Sprintf("(%s && %s)", a.left, a.right) }

type or struct{ left, right Expression }

func (o or) Matches(atoms ...string) bool { return o.left.Matches(atoms...) || o.right.Matches(atoms...) }
func (o or) String() string { return fmt.Sprintf("(%s || %s)", o.left, o.right) }

// Atom returns an expression matching a single atom.
func Atom(name string) Expression {
	return atom(name)
}

// Parse parses a label expression.
func Parse(source string) (Expression, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty label expression")
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected '%s' at position %d", p.tokens[p.pos].text, p.tokens[p.pos].pos)
	}
	return expr, nil
}

// MustParse is like Parse but panics on error.
func MustParse(source string) Expression {
	return lo.Must(Parse(source))
}

type tokenKind int

const (
	tokenAtom tokenKind = iota
	tokenAnd
	tokenOr
	tokenNot
	tokenOpen
	tokenClose
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func isSpecial(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("&|!()\"", r)
}

func tokenize(source string) ([]token, error) {
	var tokens []token
	runes := []rune(source)

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokenOpen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokenClose, ")", i})
			i++
		case r == '!':
			tokens = append(tokens, token{tokenNot, "!", i})
			i++
		case r == '&' || r == '|':
			if i+1 >= len(runes) || runes[i+1] != r {
				return nil, fmt.Errorf("expected '%c%c' at position %d", r, r, i)
			}
			kind := lo.Ternary(r == '&', tokenAnd, tokenOr)
			tokens = append(tokens, token{kind, string([]rune{r, r}), i})
			i += 2
		case r == '"':
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			if end >= len(runes) {
				return nil, fmt.Errorf("unterminated quoted atom at position %d", i)
			}
			tokens = append(tokens, token{tokenAtom, string(runes[i+1 : end]), i})
			i = end + 1
		default:
			end := i
			for end < len(runes) && !isSpecial(runes[end]) {
				end++
			}
			tokens = append(tokens, token{tokenAtom, string(runes[i:end]), i})
			i = end
		}
	}

	return tokens, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseOr() (Expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if t, ok := p.peek(); !ok || t.kind != tokenOr {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = or{left, right}
	}
}

func (p *parser) parseAnd() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if t, ok := p.peek(); !ok || t.kind != tokenAnd {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = and{left, right}
	}
}

func (p *parser) parseUnary() (Expression, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of label expression")
	}
	p.pos++

	switch t.kind {
	case tokenAtom:
		return atom(t.text), nil
	case tokenNot:
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return not{expr}, nil
	case tokenOpen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing, ok := p.peek(); !ok || closing.kind != tokenClose {
			return nil, fmt.Errorf("missing ')' for '(' at position %d", t.pos)
		}
		p.pos++
		return expr, nil
	default:
		return nil, fmt.Errorf("unexpected '%s' at position %d", t.text, t.pos)
	}
}
