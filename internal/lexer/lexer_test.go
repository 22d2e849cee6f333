package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"loxvm/internal/token"
)

func TestNextTokenPunctuationAndOperators(t *testing.T) {
	cases := []struct {
		source string
		kind   token.Kind
	}{
		{"(", token.LeftParen},
		{")", token.RightParen},
		{"{", token.LeftBrace},
		{"}", token.RightBrace},
		{"[", token.LeftBracket},
		{"]", token.RightBracket},
		{".", token.Dot},
		{";", token.Semicolon},
		{"!", token.Bang},
		{"-", token.Minus},
		{"+", token.Plus},
		{"/", token.Slash},
		{"*", token.Star},
		{"&", token.And},
		{"|", token.Or},
		{"=", token.Equal},
		{"==", token.EqualEqual},
		{">", token.Greater},
		{">=", token.GreaterEqual},
		{"<", token.Less},
		{"<=", token.LessEqual},
	}
	for _, c := range cases {
		l := New(c.source)
		tok := l.NextToken()
		require.Equal(t, c.kind, tok.Kind, "source %q", c.source)
		require.Equal(t, c.source, tok.Lexeme)
		require.Equal(t, 1, tok.Line)
	}
}

func TestNextTokenKeywordsAndIdentifiers(t *testing.T) {
	cases := []struct {
		source string
		kind   token.Kind
	}{
		{"if", token.If},
		{"else", token.Else},
		{"true", token.True},
		{"false", token.False},
		{"for", token.For},
		{"while", token.While},
		{"null", token.Null},
		{"var", token.Var},
		{"print", token.Print},
		{"foobar", token.Identifier},
		{"_leading", token.Identifier},
		{"a1", token.Identifier},
	}
	for _, c := range cases {
		l := New(c.source)
		tok := l.NextToken()
		require.Equal(t, c.kind, tok.Kind, "source %q", c.source)
		require.Equal(t, c.source, tok.Lexeme)
	}
}

func TestNextTokenNumbers(t *testing.T) {
	cases := []string{"0", "123", "1.5", "1.5f", "10f", ".5", ".5f"}
	for _, src := range cases {
		l := New(src)
		tok := l.NextToken()
		require.Equal(t, token.Number, tok.Kind, "source %q", src)
		require.Equal(t, src, tok.Lexeme)
	}
}

func TestNextTokenString(t *testing.T) {
	l := New(`"hello world"`)
	tok := l.NextToken()
	require.Equal(t, token.String, tok.Kind)
	require.Equal(t, `"hello world"`, tok.Lexeme)
}

func TestNextTokenStringEmbeddedNewlineTracksLine(t *testing.T) {
	l := New("\"line1\nline2\" 1")
	str := l.NextToken()
	require.Equal(t, token.String, str.Kind)
	num := l.NextToken()
	require.Equal(t, token.Number, num.Kind)
	require.Equal(t, 2, num.Line)
}

func TestNextTokenUnterminatedStringDoesNotErrorToken(t *testing.T) {
	l := New(`"never closes`)
	tok := l.NextToken()
	require.Equal(t, token.String, tok.Kind)
	eof := l.NextToken()
	require.Equal(t, token.EOF, eof.Kind)
}

func TestNextTokenUnterminatedBlockCommentReachesEOF(t *testing.T) {
	l := New("/* never closes\nmore text")
	tok := l.NextToken()
	require.Equal(t, token.EOF, tok.Kind)
}

func TestNextTokenLineComment(t *testing.T) {
	l := New("1 // trailing comment\n2")
	first := l.NextToken()
	require.Equal(t, token.Number, first.Kind)
	require.Equal(t, "1", first.Lexeme)
	second := l.NextToken()
	require.Equal(t, token.Number, second.Kind)
	require.Equal(t, 2, second.Line)
}

func TestNextTokenBlockComment(t *testing.T) {
	l := New("1 /* skip\nthis */ 2")
	first := l.NextToken()
	require.Equal(t, "1", first.Lexeme)
	second := l.NextToken()
	require.Equal(t, "2", second.Lexeme)
	require.Equal(t, 2, second.Line)
}

func TestNextTokenReservedButUnimplementedStillLex(t *testing.T) {
	l := New("[ ] for")
	require.Equal(t, token.LeftBracket, l.NextToken().Kind)
	require.Equal(t, token.RightBracket, l.NextToken().Kind)
	require.Equal(t, token.For, l.NextToken().Kind)
}

func TestNextTokenEOFRepeats(t *testing.T) {
	l := New("")
	require.Equal(t, token.EOF, l.NextToken().Kind)
	require.Equal(t, token.EOF, l.NextToken().Kind)
}

func TestNextTokenConsumesEntireSource(t *testing.T) {
	source := "var a = 1 + 2; // trailing\nprint a;"
	l := New(source)
	totalLen := 0
	for {
		tok := l.NextToken()
		if tok.Kind == token.EOF {
			break
		}
		totalLen += len(tok.Lexeme)
	}
	require.LessOrEqual(t, totalLen, len(source))
	require.Equal(t, len(source), l.current)
}
