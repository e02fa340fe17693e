package cel

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Segment is one piece of template text: either a literal run or the source of
// an expression hole.
type Segment struct {
	Literal string
	Expr    string
	IsExpr  bool

	// Line and Column locate the first character of Expr (1-based).
	Line   int
	Column int
}

// SyntaxError records a template parse error with the path and the position
// where the error occurred.
type SyntaxError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", e.Path, e.Line, e.Column, e.Msg)
}

// cursor tracks the line and column of a byte offset while scanning
type cursor struct {
	line, col int
}

func (c *cursor) advance(s string) {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		if r == '\n' {
			c.line++
			c.col = 1
			continue
		}
		c.col++
	}
}

// Parse splits template text into literal and expression segments.
//
// Holes are written ${ expr }. A backslash before the dollar sign (\${) emits
// a literal "${". Braces and quoted strings inside a hole are balanced so that
// map literals such as ${render('x', {'locals': v})} parse as one expression.
func Parse(text string) ([]Segment, error) {
	var (
		segments []Segment
		lit      strings.Builder
		pos      = cursor{line: 1, col: 1}
	)

	flush := func() {
		if lit.Len() == 0 {
			return
		}
		segments = append(segments, Segment{Literal: lit.String()})
		lit.Reset()
	}

	i := 0
	for i < len(text) {
		if text[i] == '\\' && strings.HasPrefix(text[i+1:], "${") {
			lit.WriteString("${")
			pos.advance(text[i : i+3])
			i += 3
			continue
		}
		if !strings.HasPrefix(text[i:], "${") {
			_, size := utf8.DecodeRuneInString(text[i:])
			lit.WriteString(text[i : i+size])
			pos.advance(text[i : i+size])
			i += size
			continue
		}

		open := pos
		pos.advance("${")
		start := i + 2
		end, err := closingBrace(text, start)
		if err != nil {
			return nil, &SyntaxError{Line: open.line, Column: open.col, Msg: err.Error()}
		}
		expr := text[start:end]
		if strings.TrimSpace(expr) == "" {
			return nil, &SyntaxError{Line: open.line, Column: open.col, Msg: "empty expression"}
		}

		flush()
		segments = append(segments, Segment{
			Expr:   expr,
			IsExpr: true,
			Line:   pos.line,
			Column: pos.col,
		})
		pos.advance(text[start : end+1])
		i = end + 1
	}
	flush()

	return segments, nil
}

// closingBrace returns the offset of the brace closing the hole opened just
// before start.
func closingBrace(text string, start int) (int, error) {
	depth := 0
	var quote byte
	for j := start; j < len(text); j++ {
		c := text[j]
		if quote != 0 {
			switch c {
			case '\\':
				j++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return j, nil
			}
			depth--
		}
	}
	if quote != 0 {
		return 0, fmt.Errorf("unterminated string in expression")
	}
	return 0, fmt.Errorf("unterminated expression")
}
