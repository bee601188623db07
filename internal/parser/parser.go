package parser

import (
	"fmt"
)

// Parse dispatches on the first token of stat and returns one of the
// statement structs in statement.go (spec.md §4.8's grammar).
func Parse(stat []byte) (interface{}, error) {
	tk := newTokenizer(stat)
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return nil, fmt.Errorf("empty statement")
	}

	switch tok {
	case "begin":
		tk.pop()
		return parseBegin(tk)
	case "commit":
		tk.pop()
		return noMoreTokens(tk, Commit{})
	case "abort":
		tk.pop()
		return noMoreTokens(tk, Abort{})
	case "show":
		tk.pop()
		return noMoreTokens(tk, Show{})
	case "create":
		tk.pop()
		return parseCreate(tk)
	case "drop":
		tk.pop()
		return parseDrop(tk)
	case "select":
		tk.pop()
		return parseSelect(tk)
	case "insert":
		tk.pop()
		return parseInsert(tk)
	case "delete":
		tk.pop()
		return parseDelete(tk)
	case "update":
		tk.pop()
		return parseUpdate(tk)
	default:
		return nil, fmt.Errorf("unknown statement %q", tok)
	}
}

func noMoreTokens(tk *tokenizer, stat interface{}) (interface{}, error) {
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if tok != "" {
		return nil, tk.errStat()
	}
	return stat, nil
}

func isName(tok string) bool {
	if tok == "" {
		return false
	}
	return !isSymbol(tok[0]) && !isCmpOp(tok) && !isLogicOp(tok)
}

func isCmpOp(tok string) bool { return tok == "<" || tok == "=" || tok == ">" }

func isLogicOp(tok string) bool { return tok == "and" || tok == "or" }

func isType(tok string) bool { return tok == "int32" || tok == "int64" || tok == "string" }

func parseBegin(tk *tokenizer) (interface{}, error) {
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	var b Begin
	if tok == "isolation" {
		tk.pop()
		if err := expect(tk, "level"); err != nil {
			return nil, err
		}
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		switch tok {
		case "read":
			tk.pop()
			if err := expect(tk, "committed"); err != nil {
				return nil, err
			}
			b.RepeatableRead = false
		case "repeatable":
			tk.pop()
			if err := expect(tk, "read"); err != nil {
				return nil, err
			}
			b.RepeatableRead = true
		default:
			return nil, tk.errStat()
		}
	}
	return noMoreTokens(tk, b)
}

func expect(tk *tokenizer, want string) error {
	tok, err := tk.peek()
	if err != nil {
		return err
	}
	if tok != want {
		return tk.errStat()
	}
	tk.pop()
	return nil
}

func parseCreate(tk *tokenizer) (interface{}, error) {
	if err := expect(tk, "table"); err != nil {
		return nil, err
	}
	var c Create
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	c.TableName = tok
	tk.pop()

	for {
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if tok == "(" {
			break
		}
		return nil, tk.errStat()
	}

	for {
		tk.pop()
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if !isName(tok) {
			return nil, tk.errStat()
		}
		fieldName := tok
		tk.pop()

		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if !isType(tok) {
			return nil, tk.errStat()
		}
		c.FieldName = append(c.FieldName, fieldName)
		c.FieldType = append(c.FieldType, tok)
		tk.pop()

		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if tok == "," {
			continue
		}
		if tok == ")" {
			break
		}
		return nil, tk.errStat()
	}
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return c, nil
	}
	if err := expect(tk, "("); err != nil {
		return nil, err
	}
	for {
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if !isName(tok) {
			return nil, tk.errStat()
		}
		c.Index = append(c.Index, tok)
		tk.pop()
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if tok == "," {
			tk.pop()
			continue
		}
		if tok == ")" {
			tk.pop()
			break
		}
		return nil, tk.errStat()
	}
	return noMoreTokens(tk, c)
}

func parseDrop(tk *tokenizer) (interface{}, error) {
	if err := expect(tk, "table"); err != nil {
		return nil, err
	}
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	tk.pop()
	return noMoreTokens(tk, Drop{TableName: tok})
}

func parseSelect(tk *tokenizer) (interface{}, error) {
	var s Select
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "*" {
		s.Fields = []string{"*"}
		tk.pop()
	} else {
		for {
			if !isName(tok) {
				return nil, tk.errStat()
			}
			s.Fields = append(s.Fields, tok)
			tk.pop()
			tok, err = tk.peek()
			if err != nil {
				return nil, err
			}
			if tok == "," {
				tk.pop()
				tok, err = tk.peek()
				if err != nil {
					return nil, err
				}
				continue
			}
			break
		}
	}

	if err := expect(tk, "from"); err != nil {
		return nil, err
	}
	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	s.TableName = tok
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return s, nil
	}
	where, err := parseWhere(tk)
	if err != nil {
		return nil, err
	}
	s.Where = where
	return noMoreTokens(tk, s)
}

func parseInsert(tk *tokenizer) (interface{}, error) {
	if err := expect(tk, "into"); err != nil {
		return nil, err
	}
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	var ins Insert
	ins.TableName = tok
	tk.pop()

	if err := expect(tk, "values"); err != nil {
		return nil, err
	}
	for {
		tok, err = tk.peek()
		if err != nil {
			return nil, err
		}
		if tok == "" {
			break
		}
		ins.Values = append(ins.Values, tok)
		tk.pop()
	}
	return ins, nil
}

func parseDelete(tk *tokenizer) (interface{}, error) {
	if err := expect(tk, "from"); err != nil {
		return nil, err
	}
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	var d Delete
	d.TableName = tok
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return d, nil
	}
	where, err := parseWhere(tk)
	if err != nil {
		return nil, err
	}
	d.Where = where
	return noMoreTokens(tk, d)
}

func parseUpdate(tk *tokenizer) (interface{}, error) {
	var u Update
	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	u.TableName = tok
	tk.pop()

	if err := expect(tk, "set"); err != nil {
		return nil, err
	}
	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if !isName(tok) {
		return nil, tk.errStat()
	}
	u.FieldName = tok
	tk.pop()

	if err := expect(tk, "="); err != nil {
		return nil, err
	}
	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	u.Value = tok
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return u, nil
	}
	where, err := parseWhere(tk)
	if err != nil {
		return nil, err
	}
	u.Where = where
	return noMoreTokens(tk, u)
}

// parseWhere parses at most two SingleExpressions joined by and/or, per
// spec.md §4.8 (no nesting).
func parseWhere(tk *tokenizer) (*Where, error) {
	if err := expect(tk, "where"); err != nil {
		return nil, err
	}
	var w Where
	exp1, err := parseSingleExp(tk)
	if err != nil {
		return nil, err
	}
	w.Exp1 = exp1

	tok, err := tk.peek()
	if err != nil {
		return nil, err
	}
	if tok == "" {
		return &w, nil
	}
	if !isLogicOp(tok) {
		return nil, tk.errStat()
	}
	w.LogicOp = tok
	tk.pop()

	exp2, err := parseSingleExp(tk)
	if err != nil {
		return nil, err
	}
	w.Exp2 = exp2

	if tok, err = tk.peek(); err != nil {
		return nil, err
	} else if tok != "" {
		return nil, tk.errStat()
	}
	return &w, nil
}

func parseSingleExp(tk *tokenizer) (SingleExpression, error) {
	var e SingleExpression
	tok, err := tk.peek()
	if err != nil {
		return e, err
	}
	if !isName(tok) {
		return e, tk.errStat()
	}
	e.Field = tok
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return e, err
	}
	if !isCmpOp(tok) {
		return e, tk.errStat()
	}
	e.CompareOp = tok
	tk.pop()

	tok, err = tk.peek()
	if err != nil {
		return e, err
	}
	if tok == "" {
		return e, tk.errStat()
	}
	e.Value = tok
	tk.pop()
	return e, nil
}
