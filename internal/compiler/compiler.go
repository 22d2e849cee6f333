// Package compiler implements the single-pass Pratt-parsing compiler: it
// consumes tokens from a lexer.Lexer and emits bytecode directly onto a
// chunk.Chunk, with no intermediate AST. Scope resolution, assignment
// validity, and control-flow patching all happen inline as tokens are
// consumed.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"loxvm/internal/chunk"
	"loxvm/internal/intern"
	"loxvm/internal/lexer"
	"loxvm/internal/token"
	"loxvm/internal/value"
)

// precedence orders binding power from loosest to tightest, ascending.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or (|)
	precAnd                   // and (&)
	precEquality              // ==
	precComparison            // > >= < <=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

// parseFn is a prefix or infix parse step, a method on *Compiler bound to
// a token kind via the rules table. canAssign threads the "is this
// expression in assignment-target position" flag from parsePrecedence.
type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// rules is the dense Pratt table, indexed by token.Kind, mirroring the
// shape of the original compiler's `ParseRule rules[]` array.
var rules [token.Count]parseRule

func init() {
	rules[token.LeftParen] = parseRule{prefix: (*Compiler).grouping}
	rules[token.Minus] = parseRule{prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm}
	rules[token.Plus] = parseRule{infix: (*Compiler).binary, precedence: precTerm}
	rules[token.Slash] = parseRule{infix: (*Compiler).binary, precedence: precFactor}
	rules[token.Star] = parseRule{infix: (*Compiler).binary, precedence: precFactor}
	rules[token.Bang] = parseRule{prefix: (*Compiler).unary}
	rules[token.EqualEqual] = parseRule{infix: (*Compiler).binary, precedence: precEquality}
	rules[token.Greater] = parseRule{infix: (*Compiler).binary, precedence: precComparison}
	rules[token.GreaterEqual] = parseRule{infix: (*Compiler).binary, precedence: precComparison}
	rules[token.Less] = parseRule{infix: (*Compiler).binary, precedence: precComparison}
	rules[token.LessEqual] = parseRule{infix: (*Compiler).binary, precedence: precComparison}
	rules[token.Identifier] = parseRule{prefix: (*Compiler).variable}
	rules[token.String] = parseRule{prefix: (*Compiler).string}
	rules[token.Number] = parseRule{prefix: (*Compiler).number}
	rules[token.And] = parseRule{infix: (*Compiler).and_, precedence: precAnd}
	rules[token.Or] = parseRule{infix: (*Compiler).or_, precedence: precOr}
	rules[token.False] = parseRule{prefix: (*Compiler).literal}
	rules[token.Null] = parseRule{prefix: (*Compiler).literal}
	rules[token.True] = parseRule{prefix: (*Compiler).literal}
	// Every other kind (including the reserved-but-unimplemented
	// LeftBracket/RightBracket/For) keeps the zero parseRule: no prefix,
	// no infix, precNone — so referencing one as an expression falls
	// through to "Expect expression." in parsePrecedence, matching
	// original_source's unregistered-rule behavior exactly.
}

// local mirrors the original `Local{name, depth, final}`: depth -1 marks
// "declared but not yet initialized", used to reject `var x = x;` inside a
// block scope. final is parsed but never set true by any grammar
// production (dormant, per SPEC_FULL.md §7).
type local struct {
	name  token.Token
	depth int
	final bool
}

// maxLocals is the limit imposed by the 1-byte local-slot operand.
const maxLocals = 256

// Compiler holds all single-pass compile state: the lexer, the two-token
// lookahead (current/previous), error/panic-mode bookkeeping, the scope's
// locals, and the chunk being emitted into.
type Compiler struct {
	lex *lexer.Lexer

	current  token.Token
	previous token.Token

	hadError  bool
	panicMode bool
	errors    []string

	locals     []local
	scopeDepth int

	chunk   *chunk.Chunk
	strings *intern.Table
	objects value.Object
}

// Compile compiles source into a fresh chunk.Chunk. Every string constant
// it emits — literals and identifier names alike — is canonicalized
// through strings, the same interning table the VM runs with, so that two
// occurrences of an equal string (whether compiled together or across
// separate REPL lines sharing one VM) are the same *value.ObjString and
// compare equal by the identity check the OP_EQUAL opcode performs.
// objects is the caller's current heap-object list head; Compile links any
// newly interned string onto it and returns the new head so the caller
// can keep tearing the whole list down on Free.
//
// Compile returns the chunk, the updated object list, and the accumulated
// error messages; a non-empty error slice means compilation failed and the
// chunk must not be run.
func Compile(source string, strings *intern.Table, objects value.Object) (*chunk.Chunk, value.Object, []string) {
	c := &Compiler{
		lex:     lexer.New(source),
		chunk:   chunk.New(),
		strings: strings,
		objects: objects,
	}
	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.emitByte(byte(chunk.OpReturn))
	return c.chunk, c.objects, c.errors
}

// internConstant canonicalizes chars through the compiler's shared string
// table, linking any freshly allocated ObjString onto the object list.
func (c *Compiler) internConstant(chars string) *value.ObjString {
	s, objects := c.strings.Intern(chars, c.objects)
	c.objects = objects
	return s
}

// --- token stream -----------------------------------------------------

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.NextToken()
		if c.current.Kind != token.Error {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) consume(kind token.Kind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(kind token.Kind) bool {
	return c.current.Kind == kind
}

func (c *Compiler) match(kind token.Kind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

// --- error reporting ---------------------------------------------------

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	var where string
	switch tok.Kind {
	case token.EOF:
		where = " at end"
	case token.Error:
		where = ""
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}
	c.errors = append(c.errors, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message))
}

func (c *Compiler) error(message string)          { c.errorAt(c.previous, message) }
func (c *Compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }

// --- bytecode emission --------------------------------------------------

func (c *Compiler) emitByte(b byte) {
	c.chunk.Write(b, c.previous.Line)
}

func (c *Compiler) emitBytes(b1, b2 byte) {
	c.emitByte(b1)
	c.emitByte(b2)
}

func (c *Compiler) emitLoop(loopStart int) {
	c.emitByte(byte(chunk.OpLoop))
	offset := len(c.chunk.Code) - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.chunk.WriteShort(uint16(offset), c.previous.Line)
}

// emitJump emits instruction followed by a two-byte placeholder offset,
// returning the offset of the placeholder's first byte for later patching.
func (c *Compiler) emitJump(instruction chunk.OpCode) int {
	c.emitByte(byte(instruction))
	return c.chunk.WriteShort(0xffff, c.previous.Line)
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk.Code) - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
	}
	c.chunk.PatchShort(offset, uint16(jump))
}

// emitConstant adds v to the constant pool and emits the short or long
// CONSTANT form depending on the resulting index.
func (c *Compiler) emitConstant(v value.Value) {
	c.chunk.WriteConstant(v, c.previous.Line)
}

// --- variable resolution -------------------------------------------------

// identifierConstant interns name's text as a string constant (used for
// global variable names) and returns its pool index.
func (c *Compiler) identifierConstant(name token.Token) int {
	return c.chunk.AddConstant(value.ObjValue(c.internConstant(name.Lexeme)))
}

func identifiersEqual(a, b token.Token) bool {
	return a.Lexeme == b.Lexeme
}

// resolveLocal searches locals newest-to-oldest for name, returning its
// slot or -1 if not found. A match with depth -1 (still initializing)
// reports the self-reference error but still returns the slot, matching
// the original's error-then-continue behavior.
func (c *Compiler) resolveLocal(name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if identifiersEqual(name, l.name) {
			if l.depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *Compiler) addLocal(name token.Token, final bool) {
	if len(c.locals) == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1, final: final})
}

// declareVariable registers a local in the current scope. At global scope
// (depth 0) it is a no-op — globals are resolved by name at runtime, not
// by slot, so `var x = x;` at global scope is never flagged (the
// preserved open-question behavior from SPEC_FULL.md §7).
func (c *Compiler) declareVariable(final bool) {
	if c.scopeDepth == 0 {
		return
	}
	name := c.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := &c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if identifiersEqual(name, l.name) {
			c.error("Already variable with this name in this scope")
		}
	}
	c.addLocal(name, final)
}

// parseVariable consumes an identifier, declares it, and returns the
// global constant index to use (0 and unused for locals).
func (c *Compiler) parseVariable(errorMessage string) int {
	c.consume(token.Identifier, errorMessage)
	c.declareVariable(false)
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous)
}

func (c *Compiler) markInitialized() {
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

// defineVariable emits the definition step: for a local, it just marks
// the slot initialized (the initializer's value is already on the stack
// at the right slot); for a global, it emits DEFINE_GLOBAL[_LONG].
func (c *Compiler) defineVariable(global int) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	if global <= chunk.MaxShortIndex {
		c.emitBytes(byte(chunk.OpDefineGlobal), byte(global))
		return
	}
	c.emitByte(byte(chunk.OpDefineGlobalLong))
	c.emitLongOperand(uint32(global))
}

func (c *Compiler) emitLongOperand(v uint32) {
	c.emitByte(byte(v))
	c.emitByte(byte(v >> 8))
	c.emitByte(byte(v >> 16))
	c.emitByte(byte(v >> 24))
}

// --- prefix / infix parse rules -----------------------------------------

func (c *Compiler) and_(bool) {
	endJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or_(bool) {
	elseJump := c.emitJump(chunk.OpJumpIfFalse)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitByte(byte(chunk.OpPop))
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func (c *Compiler) number(bool) {
	lexeme := strings.TrimSuffix(c.previous.Lexeme, "f")
	n, _ := strconv.ParseFloat(lexeme, 64)
	c.emitConstant(value.NumberValue(n))
}

func (c *Compiler) string(bool) {
	// Strip the surrounding quotes the lexer's span includes; an
	// unterminated string has only the opening one.
	chars := c.previous.Lexeme[1:]
	if strings.HasSuffix(chars, `"`) {
		chars = chars[:len(chars)-1]
	}
	c.emitConstant(value.ObjValue(c.internConstant(chars)))
}

// namedVariable resolves name to a local slot or global name and emits
// either the GET or SET form, consulting canAssign exactly as
// parsePrecedence's assignment-target rule requires.
func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp chunk.OpCode
	isLocal := false
	arg := c.resolveLocal(name)
	if arg != -1 {
		isLocal = true
		if arg > chunk.MaxShortIndex {
			getOp, setOp = chunk.OpGetLocalLong, chunk.OpSetLocalLong
		} else {
			getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
		}
	} else {
		arg = c.identifierConstant(name)
		if arg > chunk.MaxShortIndex {
			getOp, setOp = chunk.OpGetGlobalLong, chunk.OpSetGlobalLong
		} else {
			getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
		}
	}
	long := arg > chunk.MaxShortIndex

	if canAssign && c.match(token.Equal) {
		if isLocal && c.locals[arg].final {
			c.error("Can't reassign final variable")
		}
		c.expression()
		if long {
			c.emitByte(byte(setOp))
			c.emitLongOperand(uint32(arg))
		} else {
			c.emitBytes(byte(setOp), byte(arg))
		}
		return
	}
	if long {
		c.emitByte(byte(getOp))
		c.emitLongOperand(uint32(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.previous, canAssign)
}

func (c *Compiler) unary(bool) {
	operator := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch operator {
	case token.Bang:
		c.emitByte(byte(chunk.OpNot))
	case token.Minus:
		c.emitByte(byte(chunk.OpNegate))
	}
}

// binary compiles the right operand at one precedence tighter than the
// operator's own (for left-associativity), then emits the operator.
// `>=` compiles as LESS+NOT and `<=` as GREATER+NOT, preserving the NaN
// quirk documented in SPEC_FULL.md §7.
func (c *Compiler) binary(bool) {
	operator := c.previous.Kind
	rule := rules[operator]
	c.parsePrecedence(rule.precedence + 1)

	switch operator {
	case token.EqualEqual:
		c.emitByte(byte(chunk.OpEqual))
	case token.Greater:
		c.emitByte(byte(chunk.OpGreater))
	case token.GreaterEqual:
		c.emitBytes(byte(chunk.OpLess), byte(chunk.OpNot))
	case token.Less:
		c.emitByte(byte(chunk.OpLess))
	case token.LessEqual:
		c.emitBytes(byte(chunk.OpGreater), byte(chunk.OpNot))
	case token.Plus:
		c.emitByte(byte(chunk.OpAdd))
	case token.Minus:
		c.emitByte(byte(chunk.OpSubtract))
	case token.Star:
		c.emitByte(byte(chunk.OpMultiply))
	case token.Slash:
		c.emitByte(byte(chunk.OpDivide))
	}
}

func (c *Compiler) literal(bool) {
	switch c.previous.Kind {
	case token.False:
		c.emitByte(byte(chunk.OpFalse))
	case token.Null:
		c.emitByte(byte(chunk.OpNil))
	case token.True:
		c.emitByte(byte(chunk.OpTrue))
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(token.RightParen, "Expect ')' after expression")
}

// --- Pratt driver --------------------------------------------------------

func (c *Compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := rules[c.previous.Kind].prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= rules[c.current.Kind].precedence {
		c.advance()
		infixRule := rules[c.previous.Kind].infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(token.Equal) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func (c *Compiler) block() {
	for !c.check(token.RightBrace) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RightBrace, "Expect '}' after block.")
}

func (c *Compiler) beginScope() { c.scopeDepth++ }

func (c *Compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitByte(byte(chunk.OpPop))
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// --- statements & declarations -------------------------------------------

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")
	if c.match(token.Equal) {
		c.expression()
	} else {
		c.emitByte(byte(chunk.OpNil))
	}
	c.consume(token.Semicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after expression.")
	c.emitByte(byte(chunk.OpPop))
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "Expect ';' after value.")
	c.emitByte(byte(chunk.OpPrint))
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.chunk.Code)
	c.consume(token.LeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitByte(byte(chunk.OpPop))
}

func (c *Compiler) ifStatement() {
	c.consume(token.LeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfFalse)
	c.emitByte(byte(chunk.OpPop))
	c.statement()
	elseJump := c.emitJump(chunk.OpJump)

	c.patchJump(thenJump)
	c.emitByte(byte(chunk.OpPop))
	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

// synchronize resynchronizes at the next statement boundary after a
// compile error, per the panic-mode recovery policy in SPEC_FULL.md §4.6.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.previous.Kind == token.Semicolon {
			return
		}
		switch c.current.Kind {
		case token.Var, token.If, token.While, token.Print:
			return
		}
		c.advance()
	}
}

func (c *Compiler) declaration() {
	if c.match(token.Var) {
		c.varDeclaration()
	} else {
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.LeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}
