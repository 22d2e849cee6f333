package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loxvm/internal/chunk"
	"loxvm/internal/intern"
)

// Most compile->run behavior is exercised end-to-end in internal/vm's
// tests, which check both compilation and execution together. These
// tests cover compiler-only concerns: chunk shape and error reporting.

func compile(src string) (*chunk.Chunk, []string) {
	c, _, errs := Compile(src, intern.New(), nil)
	return c, errs
}

func TestCompileSmoke(t *testing.T) {
	cases := []string{
		"1 + 2;",
		`var a = "foo"; var b = "bar"; print a + b;`,
		"var x = 0; while (x < 3) { print x; x = x + 1; }",
		`if (1 < 2) print "yes"; else print "no";`,
		"{ var x = 1; { var x = 2; print x; } print x; }",
	}
	for _, src := range cases {
		_, errs := compile(src)
		require.Empty(t, errs, "source %q", src)
	}
}

func TestCompileEndsWithReturn(t *testing.T) {
	c, errs := compile("print 1;")
	require.Empty(t, errs)
	require.Equal(t, chunk.OpReturn, chunk.OpCode(c.Code[len(c.Code)-1]))
}

func TestCompileErrorVarSelfReferenceInBlock(t *testing.T) {
	_, errs := compile("{ var x = x; }")
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "Can't read local variable in its own initializer.")
}

func TestCompileErrorVarSelfReferenceAtGlobalScopeIsNotDetected(t *testing.T) {
	_, errs := compile("var x = x;")
	require.Empty(t, errs)
}

func TestCompileErrorDuplicateLocal(t *testing.T) {
	_, errs := compile("{ var a; var a; }")
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "Already variable with this name in this scope")
}

func TestCompileErrorInvalidAssignmentTarget(t *testing.T) {
	_, errs := compile("1 + 2 = 3;")
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "Invalid assignment target.")
}

func TestCompileReservedTokensAreSyntaxErrors(t *testing.T) {
	for _, src := range []string{"print [1];", "print for;"} {
		_, errs := compile(src)
		require.NotEmpty(t, errs, "source %q", src)
		require.Contains(t, errs[0], "Expect expression.")
	}
}

func TestCompileLongConstantForm(t *testing.T) {
	var src string
	for i := 0; i < 300; i++ {
		src += `var v` + itoa(i) + ` = "x";` + "\n"
	}
	c, errs := compile(src)
	require.Empty(t, errs)
	found := false
	for _, b := range c.Code {
		if chunk.OpCode(b) == chunk.OpDefineGlobalLong {
			found = true
			break
		}
	}
	require.True(t, found, "expected a long-form global definition once the constant pool exceeds 256 entries")
}

func TestCompileInternsEqualStringLiteralsToTheSamePointer(t *testing.T) {
	table := intern.New()
	c, _, errs := Compile(`"a"; "a";`, table, nil)
	require.Empty(t, errs)
	require.Len(t, c.Constants, 2)
	require.Same(t, c.Constants[0].Obj, c.Constants[1].Obj)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
