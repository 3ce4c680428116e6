package sexp

import (
	"github.com/pkg/errors"
)

type parser struct {
	src  []rune
	off  int
	line int
	col  int
	file string
}

func newParser(file, src string) *parser {
	return &parser{src: []rune(src), line: 1, col: 1, file: file}
}

// Parse reads exactly one s-expression from src.
func Parse(src string) (SExp, error) {
	return ParseFile("", src)
}

// ParseFile is Parse with a file name attached to every position.
func ParseFile(file, src string) (SExp, error) {
	p := newParser(file, src)
	s, err := p.next()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Errorf("%s: empty input", p.pos())
	}
	p.skip()
	if p.off < len(p.src) {
		return nil, errors.Errorf("%s: trailing input after expression", p.pos())
	}
	return s, nil
}

// ParseAll reads a sequence of s-expressions.
func ParseAll(src string) ([]SExp, error) {
	p := newParser("", src)
	var out []SExp
	for {
		s, err := p.next()
		if err != nil {
			return nil, err
		}
		if s == nil {
			return out, nil
		}
		out = append(out, s)
	}
}

// Reader pulls successive expressions from a growing buffer, as produced
// by an interactive solver. Feed appends data; Next returns nil, nil when
// no complete expression is buffered yet.
type Reader struct {
	buf []rune
}

func (r *Reader) Feed(data string) {
	r.buf = append(r.buf, []rune(data)...)
}

func (r *Reader) Next() (SExp, error) {
	p := &parser{src: r.buf, line: 1, col: 1}
	p.skip()
	if p.off == len(p.src) {
		r.buf = r.buf[:0]
		return nil, nil
	}
	if !p.complete() {
		return nil, nil
	}
	s, err := p.next()
	if err != nil {
		return nil, err
	}
	r.buf = append([]rune(nil), r.buf[p.off:]...)
	return s, nil
}

// complete reports whether a whole expression is available from the
// current offset.
func (p *parser) complete() bool {
	depth := 0
	inString, inBar := false, false
	for i := p.off; i < len(p.src); i++ {
		c := p.src[i]
		switch {
		case inString:
			if c == '"' {
				inString = false
			}
		case inBar:
			if c == '|' {
				inBar = false
			}
		case c == '"':
			inString = true
		case c == '|':
			inBar = true
		case c == ';':
			for i < len(p.src) && p.src[i] != '\n' {
				i++
			}
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth <= 0 {
				return true
			}
		case depth == 0 && isSpace(c):
			return true
		}
	}
	// A bare atom at end of buffer may still be growing.
	return false
}

func (p *parser) pos() Pos {
	return Pos{File: p.file, Line: p.line, Col: p.col}
}

func (p *parser) advance() rune {
	c := p.src[p.off]
	p.off++
	if c == '\n' {
		p.line++
		p.col = 1
	} else {
		p.col++
	}
	return c
}

func (p *parser) skip() {
	for p.off < len(p.src) {
		c := p.src[p.off]
		if isSpace(c) {
			p.advance()
			continue
		}
		if c == ';' {
			for p.off < len(p.src) && p.src[p.off] != '\n' {
				p.advance()
			}
			continue
		}
		return
	}
}

func (p *parser) next() (SExp, error) {
	p.skip()
	if p.off >= len(p.src) {
		return nil, nil
	}
	start := p.pos()
	switch c := p.src[p.off]; c {
	case '(':
		p.advance()
		list := &List{Pos: start}
		for {
			p.skip()
			if p.off >= len(p.src) {
				return nil, errors.Errorf("%s: unterminated list", start)
			}
			if p.src[p.off] == ')' {
				p.advance()
				return list, nil
			}
			item, err := p.next()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
	case ')':
		return nil, errors.Errorf("%s: unexpected ')'", start)
	case '"', '|':
		return p.quoted(c, start)
	default:
		begin := p.off
		for p.off < len(p.src) {
			c := p.src[p.off]
			if isSpace(c) || c == '(' || c == ')' || c == ';' {
				break
			}
			p.advance()
		}
		return &Atom{Value: string(p.src[begin:p.off]), Pos: start}, nil
	}
}

func (p *parser) quoted(delim rune, start Pos) (SExp, error) {
	begin := p.off
	p.advance()
	for p.off < len(p.src) {
		if p.advance() == delim {
			// "" escapes a quote inside SMT-LIB strings.
			if delim == '"' && p.off < len(p.src) && p.src[p.off] == '"' {
				p.advance()
				continue
			}
			return &Atom{Value: string(p.src[begin:p.off]), Pos: start}, nil
		}
	}
	return nil, errors.Errorf("%s: unterminated %c", start, delim)
}

func isSpace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
