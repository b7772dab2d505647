package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	s := New([]byte(src))
	var toks []Token
	for {
		tok := s.ScanToken()
		toks = append(toks, tok)
		if tok.Kind == EOF || tok.Kind == Error {
			break
		}
	}
	return toks
}

func TestScanPunctuationAndOperators(t *testing.T) {
	toks := scanAll(t, "( ) { } [ ] , . ; : + - * / % **")
	require.True(t, len(toks) > 1)
	kinds := make([]Kind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{
		LeftParen, RightParen, LeftBrace, RightBrace, LeftBracket, RightBracket,
		Comma, Dot, Semicolon, Colon, Plus, Minus, Star, Slash, Percent, Star2, EOF,
	}, kinds)
}

func TestScanCompoundAssignOperators(t *testing.T) {
	toks := scanAll(t, "+= -= *= /= %= **=")
	kinds := make([]Kind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []Kind{PlusEqual, MinusEqual, StarEqual, SlashEqual, PercentEqual, Star2Equal, EOF}, kinds)
}

func TestScanKeywordsVsIdentifiers(t *testing.T) {
	toks := scanAll(t, "let fun leto")
	require.Len(t, toks, 4)
	assert.Equal(t, Let, toks[0].Kind)
	assert.Equal(t, Fun, toks[1].Kind)
	assert.Equal(t, Identifier, toks[2].Kind)
	assert.Equal(t, "leto", string(toks[2].Lexeme))
}

func TestScanNumber(t *testing.T) {
	toks := scanAll(t, "42 3.14")
	require.Len(t, toks, 3)
	assert.Equal(t, "42", string(toks[0].Lexeme))
	assert.Equal(t, "3.14", string(toks[1].Lexeme))
}

func TestScanStringFlavors(t *testing.T) {
	toks := scanAll(t, `'basic' "template" `+"`raw\nstring`")
	require.Len(t, toks, 4)
	assert.Equal(t, StringBasic, toks[0].Kind)
	assert.Equal(t, StringTemplate, toks[1].Kind)
	assert.Equal(t, StringRaw, toks[2].Kind)
	assert.Contains(t, string(toks[2].Lexeme), "\n")
}

func TestUnterminatedStringIsAnErrorToken(t *testing.T) {
	toks := scanAll(t, "'unterminated")
	require.Len(t, toks, 1)
	assert.Equal(t, Error, toks[0].Kind)
}

func TestLineCommentSkipped(t *testing.T) {
	toks := scanAll(t, "1 // a comment\n2")
	require.Len(t, toks, 3)
	assert.Equal(t, 1, toks[0].Line)
	assert.Equal(t, 2, toks[1].Line)
}

func TestNestedBlockComments(t *testing.T) {
	toks := scanAll(t, "1 /* outer /* inner */ still outer */ 2")
	require.Len(t, toks, 3)
	assert.Equal(t, "1", string(toks[0].Lexeme))
	assert.Equal(t, "2", string(toks[1].Lexeme))
}

func TestUnclosedBlockCommentRunsToEOF(t *testing.T) {
	toks := scanAll(t, "1 /* never closes")
	require.Len(t, toks, 2)
	assert.Equal(t, EOF, toks[1].Kind)
}
