package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLexSplitsOnWhitespace(t *testing.T) {
	tokens, strs, err := Lex("dup 1 != swap")
	require.NoError(t, err)
	require.Equal(t, []string{"dup", "1", "!=", "swap"}, tokens)
	require.Empty(t, strs)
}

func TestLexExtractsStringLiterals(t *testing.T) {
	tokens, strs, err := Lex(`str greeting "hello\n"`)
	require.NoError(t, err)
	require.Equal(t, []string{"str", "greeting", "*"}, tokens)
	require.Equal(t, []string{"hello\n"}, strs)
}

func TestLexDecodesEscapes(t *testing.T) {
	_, strs, err := Lex(`str s "a\tb\\c\0"`)
	require.NoError(t, err)
	require.Equal(t, []string{"a\tb\\c\x00"}, strs)
}

func TestLexLineCommentRunsToNewline(t *testing.T) {
	tokens, _, err := Lex("dup \\ this is a comment\nswap")
	require.NoError(t, err)
	require.Equal(t, []string{"dup", "swap"}, tokens)
}

func TestLexCommentDirectlyAfterToken(t *testing.T) {
	tokens, _, err := Lex("dup\\ comment\nswap")
	require.NoError(t, err)
	require.Equal(t, []string{"dup", "swap"}, tokens)
}

func TestLexUnterminatedStringIsError(t *testing.T) {
	_, _, err := Lex(`str s "unterminated`)
	require.Error(t, err)
}

func TestLexMultipleStringsInEncounterOrder(t *testing.T) {
	tokens, strs, err := Lex(`str a "one" str b "two"`)
	require.NoError(t, err)
	require.Equal(t, []string{"str", "a", "*", "str", "b", "*"}, tokens)
	require.Equal(t, []string{"one", "two"}, strs)
}
