package expression

import (
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"
)

type parser struct {
	in []byte
	// pos is the byte offset of current, offset the one of the rune after it.
	pos     int
	offset  int
	no      int
	current rune
	// invalid records the first byte sequence that is not valid UTF-8.
	invalid error
}

func newParser(in string) *parser {
	p := &parser{
		in: []byte(in),
	}
	p.next()
	return p
}

func (s *parser) next() rune {
	s.pos = s.offset
	if s.offset >= len(s.in) {
		s.current = 0
		return 0
	}
	r, size := utf8.DecodeRune(s.in[s.offset:])
	s.current = r
	if r == utf8.RuneError && size <= 1 {
		if s.invalid == nil {
			s.invalid = s.errorf("invalid UTF-8 at byte %d", s.offset)
		}
		size = 1
	}
	s.offset += size
	s.no++
	return r
}

// peek returns the rune following the current one without consuming it.
func (s *parser) peek() rune {
	if s.offset >= len(s.in) {
		return 0
	}
	r, _ := utf8.DecodeRune(s.in[s.offset:])
	return r
}

func (s *parser) parseRune(r rune) error {
	if s.skipBlank() != r {
		return s.errorf("%q expected", string(r))
	}
	s.next()
	return nil
}

func (s *parser) errorf(msg string, args ...interface{}) error {
	return fmt.Errorf("%q %d: %s", string(s.in), s.no, fmt.Sprintf(msg, args...))
}

func (s *parser) skipBlank() rune {
	n := s.current
	for unicode.IsSpace(n) {
		n = s.next()
	}
	return n
}

func isNameStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isNamePart(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r)
}

////////////////////////////////////////////////////////////////////////////////

func (s *parser) parseExpression() (*Node, error) {
	return s.parseSum()
}

func (s *parser) parseSum() (*Node, error) {
	o1, err := s.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		switch s.skipBlank() {
		case '+', '-':
			op := s.current
			s.next()
			o2, err := s.parseProduct()
			if err != nil {
				return nil, err
			}
			o1 = NewOperatorNode(string(op), o1, o2)
		default:
			return o1, nil
		}
	}
}

func (s *parser) parseProduct() (*Node, error) {
	o1, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		switch s.skipBlank() {
		case '*', '/':
			op := s.current
			s.next()
			o2, err := s.parseUnary()
			if err != nil {
				return nil, err
			}
			o1 = NewOperatorNode(string(op), o1, o2)
		default:
			return o1, nil
		}
	}
}

func (s *parser) parseUnary() (*Node, error) {
	switch s.skipBlank() {
	case '-':
		s.next()
		o, err := s.parseUnary()
		if err != nil {
			return nil, err
		}
		if o.Kind == Number {
			return NewNumberNode(-o.Value), nil
		}
		return NewOperatorNode("-", o), nil
	case '+':
		s.next()
		return s.parseUnary()
	}
	return s.parsePower()
}

// parsePower handles '^' and '**', which are right associative and bind tighter
// than a leading minus on their left operand.
func (s *parser) parsePower() (*Node, error) {
	base, err := s.parseOperand()
	if err != nil {
		return nil, err
	}
	switch s.skipBlank() {
	case '^':
		s.next()
	case '*':
		if s.peek() != '*' {
			return base, nil
		}
		s.next()
		s.next()
	default:
		return base, nil
	}
	exp, err := s.parseUnary()
	if err != nil {
		return nil, err
	}
	return NewOperatorNode("^", base, exp), nil
}

func (s *parser) parseOperand() (*Node, error) {
	n := s.skipBlank()
	switch {
	case unicode.IsDigit(n) || n == '.':
		return s.parseNumber()
	case isNameStart(n):
		return s.parseName()
	case n == '(':
		s.next()
		e, err := s.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := s.parseRune(')'); err != nil {
			return nil, err
		}
		return e, nil
	case n == 0:
		return nil, s.errorf("unexpected end of expression")
	default:
		return nil, s.errorf("unexpected character %q for operand", string(n))
	}
}

func (s *parser) parseNumber() (*Node, error) {
	start := s.pos
	n := s.current
	for unicode.IsDigit(n) || n == '.' {
		n = s.next()
	}
	if n == 'e' || n == 'E' {
		n = s.next()
		if n == '+' || n == '-' {
			n = s.next()
		}
		if !unicode.IsDigit(n) {
			return nil, s.errorf("exponent must be a sequence of digits, but found %q", string(n))
		}
		for unicode.IsDigit(n) {
			n = s.next()
		}
	}
	text := string(s.in[start:s.pos])
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, s.errorf("invalid number %q", text)
	}
	return NewNumberNode(v), nil
}

func (s *parser) parseName() (*Node, error) {
	n := s.skipBlank()
	name := ""
	for isNamePart(n) {
		name = name + string(n)
		n = s.next()
	}
	if s.skipBlank() != '(' {
		return NewSymbolNode(name), nil
	}
	if _, ok := functions[name]; !ok {
		return nil, s.errorf("unknown function %q", name)
	}
	s.next()
	var args []*Node
	if s.skipBlank() == ')' {
		s.next()
	} else {
		for {
			a, err := s.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if s.skipBlank() == ',' {
				s.next()
				continue
			}
			if err := s.parseRune(')'); err != nil {
				return nil, err
			}
			break
		}
	}
	if want := functions[name].arity; want != len(args) {
		return nil, s.errorf("function %q takes %d arguments, got %d", name, want, len(args))
	}
	return NewCallNode(name, args...), nil
}

// Parse parses a single arithmetic expression.
func Parse(in string) (*Node, error) {
	p := newParser(in)

	n, err := p.parseExpression()
	if p.invalid != nil {
		return nil, p.invalid
	}
	if err != nil {
		return nil, err
	}
	if p.skipBlank() != 0 {
		return nil, p.errorf("unexpected character %q", string(p.current))
	}
	return n, nil
}

// MustParse is like Parse but panics on error. Intended for static definitions.
func MustParse(in string) *Node {
	n, err := Parse(in)
	if err != nil {
		panic(err)
	}
	return n
}
