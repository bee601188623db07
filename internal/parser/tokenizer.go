package parser

import (
	"fmt"
)

// tokenizer is a byte-at-a-time lexer directly translated from the
// original's Tokenizer: it lazily refreshes one token at a time and lets
// the caller peek/pop it, rather than pre-splitting the whole statement.
type tokenizer struct {
	raw      []byte
	pos      int
	current  string
	flushed  bool
	err      error
}

func newTokenizer(stat []byte) *tokenizer {
	return &tokenizer{raw: stat, flushed: true}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlphaBeta(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isSymbol(b byte) bool {
	switch b {
	case '>', '<', '=', '*', ',', '(', ')':
		return true
	}
	return false
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' || b == '\n' }

// peek returns the current token without consuming it.
func (tk *tokenizer) peek() (string, error) {
	if tk.err != nil {
		return "", tk.err
	}
	if tk.flushed {
		tok, err := tk.next()
		if err != nil {
			tk.err = err
			return "", err
		}
		tk.current = tok
		tk.flushed = false
	}
	return tk.current, nil
}

// pop consumes the current token so the next peek() advances.
func (tk *tokenizer) pop() { tk.flushed = true }

func (tk *tokenizer) errStat() error {
	const errShow = 30
	end := tk.pos + errShow
	if end > len(tk.raw) {
		end = len(tk.raw)
	}
	return fmt.Errorf("invalid statement near: %q", string(tk.raw[tk.pos:end]))
}

func (tk *tokenizer) next() (string, error) {
	for tk.pos < len(tk.raw) && isBlank(tk.raw[tk.pos]) {
		tk.pos++
	}
	if tk.pos >= len(tk.raw) {
		return "", nil
	}
	b := tk.raw[tk.pos]
	switch {
	case isSymbol(b):
		tk.pos++
		return string(b), nil
	case b == '"' || b == '\'':
		return tk.nextQuoted(b)
	case isAlphaBeta(b) || isDigit(b):
		return tk.nextToken()
	default:
		return "", tk.errStat()
	}
}

func (tk *tokenizer) nextQuoted(quote byte) (string, error) {
	start := tk.pos
	tk.pos++
	for tk.pos < len(tk.raw) && tk.raw[tk.pos] != quote {
		tk.pos++
	}
	if tk.pos >= len(tk.raw) {
		tk.pos = start
		return "", tk.errStat()
	}
	tok := string(tk.raw[start+1 : tk.pos])
	tk.pos++
	return tok, nil
}

func (tk *tokenizer) nextToken() (string, error) {
	start := tk.pos
	for tk.pos < len(tk.raw) {
		b := tk.raw[tk.pos]
		if !(isAlphaBeta(b) || isDigit(b) || b == '_') {
			break
		}
		tk.pos++
	}
	return string(tk.raw[start:tk.pos]), nil
}
