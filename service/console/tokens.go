package console

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

const (
	whitespaceCode = iota
	wordCode
	argumentCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	wordToken       = parsly.NewToken(wordCode, "Command", &wordMatcher{})
	argumentToken   = parsly.NewToken(argumentCode, "Argument", &argumentMatcher{})
)

// wordMatcher matches a lower-case command word.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	matched := 0
	for i := cursor.Pos; i < cursor.InputSize; i++ {
		c := cursor.Input[i]
		if (c >= 'a' && c <= 'z') || (matched > 0 && c >= '0' && c <= '9') {
			matched++
			continue
		}
		break
	}
	return matched
}

// argumentMatcher matches a run of non-space bytes.
type argumentMatcher struct{}

func (m *argumentMatcher) Match(cursor *parsly.Cursor) int {
	matched := 0
	for i := cursor.Pos; i < cursor.InputSize; i++ {
		if isSpace(cursor.Input[i]) {
			break
		}
		matched++
	}
	return matched
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
