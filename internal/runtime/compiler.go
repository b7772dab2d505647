package runtime

import (
	"strconv"
	"strings"

	"github.com/nqq-lang/nqq/internal/lexer"
)

// FunctionType distinguishes the implicit top-level script function from a
// user-declared one. Any `return` statement in top-level script code,
// with or without a value, is a compile error.
type FunctionType int

const (
	typeScript FunctionType = iota
	typeFunction
)

// local mirrors DYMS's Local: depth==-1 means declared but not yet
// initialized (its own initializer is still being compiled).
type local struct {
	name       string
	depth      int
	isCaptured bool
}

type upvalueEntry struct {
	index   byte
	isLocal bool
}

// funcCompiler is the per-function compiling frame. Chained
// via enclosing so nested function declarations can resolve enclosing
// locals into upvalues.
type funcCompiler struct {
	enclosing *funcCompiler
	function  *FunctionObj
	fnType    FunctionType

	locals     []local
	upvalues   []upvalueEntry
	scopeDepth int
}

type breakJump struct {
	offset     int
	scopeDepth int
}

// loopState is saved/restored around each loop so nested loops don't
// clobber the innermost loop's break/continue targets (per-loop, not global:
// "make the break-jump list a per-loop local stack, not a free-list
// global").
type loopState struct {
	start      int
	scopeDepth int
	breaks     []breakJump
}

// Parser is the single-pass Pratt parser/compiler: it emits bytecode
// directly into the currently compiling function's chunk as it parses,
// with no intermediate AST. Grounded on DYMS's Compiler (runtime/compiler.go)
// for the overall shape (chunk-per-function, scope tracking) but rebuilt
// from an AST-consuming design into a token-consuming one that never
// materializes a tree.
type Parser struct {
	scanner *lexer.Scanner
	heap    *Heap

	previous lexer.Token
	current  lexer.Token

	hadError  bool
	panicMode bool
	errors    []*CompileError

	compiler *funcCompiler
	loop     *loopState

	// pinned holds objects that are live only in local Go variables right
	// now, not yet reachable from p.compiler — e.g. a just-interned
	// function name between InternString returning and NewFunction storing
	// it. MarkRoots marks these too so a GC triggered mid-construction
	// can't sweep them out from under the caller.
	pinned []Obj
}

func (p *Parser) pin(o Obj) { p.pinned = append(p.pinned, o) }

func (p *Parser) unpin() { p.pinned = p.pinned[:len(p.pinned)-1] }

// Compile compiles source into a top-level script FunctionObj, or returns a
// *CompileError if any error was reported. The Heap's GC roots are pointed
// at the parser for the duration, so an allocation mid-compile (e.g.
// interning a string constant) can still trace the in-flight function
// chain so a collection mid-compile still sees every in-progress frame.
func Compile(source []byte, heap *Heap) (*FunctionObj, *CompileError) {
	p := &Parser{scanner: lexer.New(source), heap: heap}
	p.compiler = newFuncCompiler(nil, typeScript, heap, nil)
	heap.SetRoots(p)

	p.advance()
	for !p.match(lexer.EOF) {
		p.declaration()
	}
	fn, _ := p.endCompiler()

	if p.hadError {
		return nil, p.errors[0]
	}
	return fn, nil
}

// MarkRoots implements RootProvider: walk the enclosing chain from the
// currently compiling frame and mark each in-flight Function.
func (p *Parser) MarkRoots(h *Heap) {
	for fc := p.compiler; fc != nil; fc = fc.enclosing {
		h.MarkObject(fc.function)
	}
	for _, o := range p.pinned {
		h.MarkObject(o)
	}
}

func newFuncCompiler(enclosing *funcCompiler, fnType FunctionType, heap *Heap, name *StringObj) *funcCompiler {
	fc := &funcCompiler{enclosing: enclosing, fnType: fnType}
	fc.function = heap.NewFunction(name)
	// Slot 0 of every frame is reserved as the callee/receiver placeholder.
	fc.locals = append(fc.locals, local{name: "", depth: 0})
	return fc
}

func (p *Parser) chunk() *Chunk { return p.compiler.function.Chunk }

// ---- token stream plumbing ----

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.ScanToken()
		if p.current.Kind != lexer.Error {
			break
		}
		p.errorAtCurrent(string(p.current.Lexeme))
	}
}

func (p *Parser) check(k lexer.Kind) bool { return p.current.Kind == k }

func (p *Parser) match(k lexer.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(k lexer.Kind, msg string) {
	if p.current.Kind == k {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *Parser) errorAtPrev(msg string)    { p.errorAt(p.previous, msg) }

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true
	where := tok.String()
	if tok.Kind == lexer.EOF {
		where = "end"
	}
	p.errors = append(p.errors, &CompileError{Line: tok.Line, Where: where, Message: msg})
}

// synchronize recovers from panic mode at the next statement boundary.
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != lexer.EOF {
		if p.previous.Kind == lexer.Semicolon {
			return
		}
		switch p.current.Kind {
		case lexer.Fun, lexer.Let, lexer.For, lexer.If, lexer.While, lexer.Return:
			return
		}
		p.advance()
	}
}

// ---- emission helpers ----

func (p *Parser) emitByte(b byte) { p.chunk().Write(b, p.previous.Line) }

func (p *Parser) emitOp(op OpCode) { p.emitByte(byte(op)) }

func (p *Parser) emitOps(a, b OpCode) { p.emitOp(a); p.emitOp(b) }

// emitOperand emits op followed by index, WIDE-prefixing the instruction
// when index needs 16 bits. Shared by every opcode whose
// operand is a slot/const index.
func (p *Parser) emitOperand(op OpCode, index int) {
	if index < 0 || index > 0xFFFF {
		p.errorAtPrev("operand out of range")
		return
	}
	if index <= 0xFF {
		p.emitOp(op)
		p.emitByte(byte(index))
		return
	}
	p.emitOp(OpWide)
	p.emitOp(op)
	p.emitByte(byte(index >> 8))
	p.emitByte(byte(index))
}

func (p *Parser) emitJump(op OpCode) int {
	p.emitOp(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.chunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.chunk().Code) - offset - 2
	if jump > 0xFFFF {
		p.errorAtPrev("too much code to jump over")
		return
	}
	p.chunk().Code[offset] = byte(jump >> 8)
	p.chunk().Code[offset+1] = byte(jump)
}

func (p *Parser) emitLoop(start int) {
	p.emitOp(OpLoop)
	jump := len(p.chunk().Code) - start + 2
	if jump > 0xFFFF {
		p.errorAtPrev("loop body too large")
	}
	p.emitByte(byte(jump >> 8))
	p.emitByte(byte(jump))
}

func (p *Parser) emitPops(n int) {
	for n > 0 {
		chunk := n
		if chunk > 255 {
			chunk = 255
		}
		if chunk == 1 {
			p.emitOp(OpPop)
		} else {
			p.emitOp(OpPopN)
			p.emitByte(byte(chunk))
		}
		n -= chunk
	}
}

// endCompiler finishes the current function: an implicit `return nil` is
// appended so a function falling off the end returns nil, then this
// compiler frame is popped back to the enclosing one. The child's upvalue
// list is returned alongside its function since FunctionObj itself carries
// no compiler-only bookkeeping past compilation.
func (p *Parser) endCompiler() (*FunctionObj, []upvalueEntry) {
	p.emitOp(OpNil)
	p.emitOp(OpReturn)
	fn := p.compiler.function
	upvalues := p.compiler.upvalues
	fn.UpvalueCount = len(upvalues)
	p.compiler = p.compiler.enclosing
	return fn, upvalues
}

// ---- scope discipline ----

func (p *Parser) beginScope() { p.compiler.scopeDepth++ }

func (p *Parser) endScope() {
	p.compiler.scopeDepth--
	pops := 0
	locals := p.compiler.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > p.compiler.scopeDepth {
		last := locals[len(locals)-1]
		if last.isCaptured {
			if pops > 0 {
				p.emitPops(pops)
				pops = 0
			}
			p.emitOp(OpCloseUpvalue)
		} else {
			pops++
		}
		locals = locals[:len(locals)-1]
	}
	p.compiler.locals = locals
	if pops > 0 {
		p.emitPops(pops)
	}
}

func (p *Parser) addLocal(name string) {
	if len(p.compiler.locals) >= 1<<16 {
		p.errorAtPrev("too many local variables in function")
		return
	}
	p.compiler.locals = append(p.compiler.locals, local{name: name, depth: -1})
}

func (p *Parser) declareVariable(name string) {
	if p.compiler.scopeDepth == 0 {
		return // globals are late-bound by name, not declared here
	}
	for i := len(p.compiler.locals) - 1; i >= 0; i-- {
		l := p.compiler.locals[i]
		if l.depth != -1 && l.depth < p.compiler.scopeDepth {
			break
		}
		if l.name == name {
			p.errorAtPrev("a variable with this name already exists in this scope")
		}
	}
	p.addLocal(name)
}

func (p *Parser) markInitialized() {
	if p.compiler.scopeDepth == 0 {
		return
	}
	p.compiler.locals[len(p.compiler.locals)-1].depth = p.compiler.scopeDepth
}

// parseVariable consumes an identifier and returns the constant-pool index
// to use for OP_DEFINE_GLOBAL, or -1 if it resolved to a local.
func (p *Parser) parseVariable(errMsg string) int {
	p.consume(lexer.Identifier, errMsg)
	name := string(p.previous.Lexeme)
	p.declareVariable(name)
	if p.compiler.scopeDepth > 0 {
		return -1
	}
	return p.identifierConstant(name)
}

func (p *Parser) identifierConstant(name string) int {
	return p.chunk().AddConstant(FromObj(p.heap.InternString(name)))
}

func (p *Parser) defineVariable(globalConst int) {
	if p.compiler.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOperand(OpDefineGlobal, globalConst)
}

// resolveLocal walks locals top-down; depth==-1 on a name match means the
// variable is being read from inside its own initializer, a compile error.
func resolveLocal(fc *funcCompiler, name string) (int, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func addUpvalue(fc *funcCompiler, index byte, isLocal bool) int {
	for i, up := range fc.upvalues {
		if up.index == index && up.isLocal == isLocal {
			return i
		}
	}
	if len(fc.upvalues) >= 256 {
		return -1
	}
	fc.upvalues = append(fc.upvalues, upvalueEntry{index: index, isLocal: isLocal})
	return len(fc.upvalues) - 1
}

func resolveUpvalue(fc *funcCompiler, name string) (int, bool) {
	if fc.enclosing == nil {
		return 0, false
	}
	if slot, ok := resolveLocal(fc.enclosing, name); ok {
		fc.enclosing.locals[slot].isCaptured = true
		return addUpvalue(fc, byte(slot), true), true
	}
	if up, ok := resolveUpvalue(fc.enclosing, name); ok {
		return addUpvalue(fc, byte(up), false), true
	}
	return 0, false
}

// ---- declarations & statements ----

func (p *Parser) declaration() {
	switch {
	case p.match(lexer.Fun):
		p.funDeclaration()
	case p.match(lexer.Let):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) varDeclaration() {
	global := p.parseVariable("expect variable name")
	if p.match(lexer.Equal) {
		p.expression()
	} else {
		p.emitOp(OpNil)
	}
	p.consume(lexer.Semicolon, "expect ';' after variable declaration")
	p.defineVariable(global)
}

func (p *Parser) funDeclaration() {
	global := p.parseVariable("expect function name")
	p.markInitialized()
	p.function(typeFunction)
	p.defineVariable(global)
}

func (p *Parser) function(fnType FunctionType) {
	name := p.heap.InternString(string(p.previous.Lexeme))
	p.pin(name)
	p.compiler = newFuncCompiler(p.compiler, fnType, p.heap, name)
	p.unpin()
	p.compiler.scopeDepth++

	p.consume(lexer.LeftParen, "expect '(' after function name")
	if !p.check(lexer.RightParen) {
		for {
			p.compiler.function.Arity++
			if p.compiler.function.Arity > 255 {
				p.errorAtCurrent("can't have more than 255 parameters")
			}
			constIdx := p.parseVariable("expect parameter name")
			p.defineVariable(constIdx)
			if !p.match(lexer.Comma) {
				break
			}
		}
	}
	p.consume(lexer.RightParen, "expect ')' after parameters")
	p.consume(lexer.LeftBrace, "expect '{' before function body")
	p.block()

	fn, upvalues := p.endCompiler()
	constIdx := p.chunk().AddConstant(FromObj(fn))
	p.emitOperand(OpClosure, constIdx)

	// Emit the per-upvalue (isLocal, index) pairs for the function just
	// closed; OP_CLOSURE reads exactly fn.UpvalueCount of these at runtime.
	for _, up := range upvalues {
		if up.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(up.index)
	}
}

func (p *Parser) block() {
	for !p.check(lexer.RightBrace) && !p.check(lexer.EOF) {
		p.declaration()
	}
	p.consume(lexer.RightBrace, "expect '}' after block")
}

func (p *Parser) statement() {
	switch {
	case p.match(lexer.If):
		p.ifStatement()
	case p.match(lexer.While):
		p.whileStatement()
	case p.match(lexer.For):
		p.forStatement()
	case p.match(lexer.Return):
		p.returnStatement()
	case p.match(lexer.Break):
		p.breakStatement()
	case p.match(lexer.Continue):
		p.continueStatement()
	case p.match(lexer.LeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(lexer.Semicolon, "expect ';' after expression")
	p.emitOp(OpPop)
}

func (p *Parser) ifStatement() {
	p.consume(lexer.LeftParen, "expect '(' after 'if'")
	p.expression()
	p.consume(lexer.RightParen, "expect ')' after condition")

	thenJump := p.emitJump(OpJumpIfFalse)
	p.emitOp(OpPop)
	p.statement()
	elseJump := p.emitJump(OpJump)

	p.patchJump(thenJump)
	p.emitOp(OpPop)
	if p.match(lexer.Else) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) pushLoop(start int) *loopState {
	outer := p.loop
	p.loop = &loopState{start: start, scopeDepth: p.compiler.scopeDepth}
	return outer
}

func (p *Parser) popLoop(outer *loopState, exitTarget int) {
	for _, b := range p.loop.breaks {
		p.patchJump(b.offset)
	}
	_ = exitTarget
	p.loop = outer
}

func (p *Parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	outer := p.pushLoop(loopStart)

	p.consume(lexer.LeftParen, "expect '(' after 'while'")
	p.expression()
	p.consume(lexer.RightParen, "expect ')' after condition")

	exitJump := p.emitJump(OpJumpIfFalse)
	p.emitOp(OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(OpPop)
	p.popLoop(outer, len(p.chunk().Code))
}

func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(lexer.LeftParen, "expect '(' after 'for'")

	if p.match(lexer.Semicolon) {
		// no initializer
	} else if p.match(lexer.Let) {
		p.varDeclaration()
	} else {
		p.expressionStatement()
	}

	loopTop := len(p.chunk().Code)
	exitJump := -1
	hasCondition := !p.check(lexer.Semicolon)
	if hasCondition {
		p.expression()
		p.consume(lexer.Semicolon, "expect ';' after loop condition")
		exitJump = p.emitJump(OpJumpIfFalse)
		p.emitOp(OpPop)
	} else {
		p.consume(lexer.Semicolon, "expect ';' after loop condition")
	}

	bodyJump := p.emitJump(OpJump)
	incrStart := len(p.chunk().Code)

	outer := p.pushLoop(incrStart) // continue targets the increment clause

	if !p.check(lexer.RightParen) {
		p.expression()
		p.emitOp(OpPop)
	}
	p.consume(lexer.RightParen, "expect ')' after for clauses")
	p.emitLoop(loopTop)

	p.patchJump(bodyJump)
	p.statement()
	p.emitLoop(incrStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(OpPop)
	}

	p.popLoop(outer, len(p.chunk().Code))
	p.endScope()
}

func (p *Parser) breakStatement() {
	if p.loop == nil {
		p.errorAtPrev("can't use 'break' outside of a loop")
		p.consume(lexer.Semicolon, "expect ';' after 'break'")
		return
	}
	p.discardLoopLocals()
	offset := p.emitJump(OpJump)
	p.loop.breaks = append(p.loop.breaks, breakJump{offset: offset, scopeDepth: p.compiler.scopeDepth})
	p.consume(lexer.Semicolon, "expect ';' after 'break'")
}

func (p *Parser) continueStatement() {
	if p.loop == nil {
		p.errorAtPrev("can't use 'continue' outside of a loop")
		p.consume(lexer.Semicolon, "expect ';' after 'continue'")
		return
	}
	p.discardLoopLocals()
	p.emitLoop(p.loop.start)
	p.consume(lexer.Semicolon, "expect ';' after 'continue'")
}

// discardLoopLocals emits POPs for every local between the loop's own
// scope and the current scope, without touching the compiler's local
// list — the enclosing block's endScope still owns popping them from
// bookkeeping once control actually reaches there.
func (p *Parser) discardLoopLocals() {
	count := 0
	locals := p.compiler.locals
	for i := len(locals) - 1; i >= 0 && locals[i].depth > p.loop.scopeDepth; i-- {
		count++
	}
	p.emitPops(count)
}

func (p *Parser) returnStatement() {
	if p.compiler.fnType == typeScript {
		p.errorAtPrev("can't return from top-level code")
	}
	if p.match(lexer.Semicolon) {
		p.emitOp(OpNil)
		p.emitOp(OpReturn)
		return
	}
	p.expression()
	p.consume(lexer.Semicolon, "expect ';' after return value")
	p.emitOp(OpReturn)
}

// ---- expressions: Pratt parser ----

type precedence int

const (
	precNone precedence = iota
	precAssignment
	precOr
	precAnd
	precEquality
	precComparison
	precTerm
	precFactor
	precUnary
	precPower
	precCall
	precSubscript
	precPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.Kind]parseRule

func init() {
	rules = map[lexer.Kind]parseRule{
		lexer.LeftParen:      {(*Parser).grouping, (*Parser).call, precCall},
		lexer.LeftBracket:    {(*Parser).listLiteral, (*Parser).subscript, precSubscript},
		lexer.LeftBrace:      {(*Parser).mapLiteral, nil, precNone},
		lexer.Dot:            {nil, (*Parser).dot, precSubscript},
		lexer.Minus:          {(*Parser).unary, (*Parser).binary, precTerm},
		lexer.Plus:           {nil, (*Parser).binary, precTerm},
		lexer.Slash:          {nil, (*Parser).binary, precFactor},
		lexer.Star:           {nil, (*Parser).binary, precFactor},
		lexer.Percent:        {nil, (*Parser).binary, precFactor},
		lexer.Star2:          {nil, (*Parser).power, precPower},
		lexer.Bang:           {(*Parser).unary, nil, precNone},
		lexer.BangEqual:      {nil, (*Parser).binary, precEquality},
		lexer.EqualEqual:     {nil, (*Parser).binary, precEquality},
		lexer.Greater:        {nil, (*Parser).binary, precComparison},
		lexer.GreaterEqual:   {nil, (*Parser).binary, precComparison},
		lexer.Less:           {nil, (*Parser).binary, precComparison},
		lexer.LessEqual:      {nil, (*Parser).binary, precComparison},
		lexer.Identifier:     {(*Parser).variable, nil, precNone},
		lexer.Number:         {(*Parser).number, nil, precNone},
		lexer.StringBasic:    {(*Parser).stringLit, nil, precNone},
		lexer.StringTemplate: {(*Parser).stringLit, nil, precNone},
		lexer.StringRaw:      {(*Parser).rawStringLit, nil, precNone},
		lexer.And:            {nil, (*Parser).and_, precAnd},
		lexer.Or:             {nil, (*Parser).or_, precOr},
		lexer.True:           {(*Parser).literal, nil, precNone},
		lexer.False:          {(*Parser).literal, nil, precNone},
		lexer.Nil:            {(*Parser).literal, nil, precNone},
	}
}

func getRule(k lexer.Kind) parseRule {
	if r, ok := rules[k]; ok {
		return r
	}
	return parseRule{}
}

func (p *Parser) expression() { p.parsePrecedence(precAssignment) }

func (p *Parser) parsePrecedence(prec precedence) {
	p.advance()
	prefix := getRule(p.previous.Kind).prefix
	if prefix == nil {
		p.errorAtPrev("expect expression")
		return
	}
	canAssign := prec <= precAssignment
	prefix(p, canAssign)

	for prec <= getRule(p.current.Kind).precedence {
		p.advance()
		infix := getRule(p.previous.Kind).infix
		infix(p, canAssign)
	}

	if canAssign && (p.match(lexer.Equal) || p.isCompoundAssignToken()) {
		p.errorAtPrev("invalid assignment target")
	}
}

func (p *Parser) isCompoundAssignToken() bool {
	switch p.current.Kind {
	case lexer.PlusEqual, lexer.MinusEqual, lexer.StarEqual, lexer.SlashEqual, lexer.PercentEqual, lexer.Star2Equal:
		return true
	}
	return false
}

func (p *Parser) grouping(canAssign bool) {
	p.expression()
	p.consume(lexer.RightParen, "expect ')' after expression")
}

func (p *Parser) number(canAssign bool) {
	f, err := strconv.ParseFloat(string(p.previous.Lexeme), 64)
	if err != nil {
		p.errorAtPrev("invalid number literal")
		return
	}
	p.emitConstant(Number(f))
}

func (p *Parser) emitConstant(v Value) {
	p.emitOperand(OpConstant, p.chunk().AddConstant(v))
}

func unquote(lexeme []byte) string {
	if len(lexeme) < 2 {
		return ""
	}
	return string(lexeme[1 : len(lexeme)-1])
}

// stringLit processes escapes for basic ('...') and template ("...")
// strings (interpolation is a non-goal; templates parse as plain text).
func (p *Parser) stringLit(canAssign bool) {
	raw := unquote(p.previous.Lexeme)
	p.emitConstant(FromObj(p.heap.InternString(processEscapes(raw))))
}

// rawStringLit never interprets escapes; newlines are preserved verbatim.
func (p *Parser) rawStringLit(canAssign bool) {
	raw := unquote(p.previous.Lexeme)
	p.emitConstant(FromObj(p.heap.InternString(raw)))
}

func processEscapes(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case '0':
			b.WriteByte(0)
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func (p *Parser) literal(canAssign bool) {
	switch p.previous.Kind {
	case lexer.True:
		p.emitOp(OpTrue)
	case lexer.False:
		p.emitOp(OpFalse)
	case lexer.Nil:
		p.emitOp(OpNil)
	}
}

func (p *Parser) unary(canAssign bool) {
	op := p.previous.Kind
	p.parsePrecedence(precUnary)
	switch op {
	case lexer.Minus:
		p.emitOp(OpNegate)
	case lexer.Bang:
		p.emitOp(OpNot)
	}
}

func (p *Parser) binary(canAssign bool) {
	op := p.previous.Kind
	rule := getRule(op)
	p.parsePrecedence(rule.precedence + 1)
	switch op {
	case lexer.Plus:
		p.emitOp(OpAdd)
	case lexer.Minus:
		p.emitOp(OpSubtract)
	case lexer.Star:
		p.emitOp(OpMultiply)
	case lexer.Slash:
		p.emitOp(OpDivide)
	case lexer.Percent:
		p.emitOp(OpModulo)
	case lexer.EqualEqual:
		p.emitOp(OpEqual)
	case lexer.BangEqual:
		p.emitOps(OpEqual, OpNot)
	case lexer.Greater:
		p.emitOp(OpGreater)
	case lexer.GreaterEqual:
		p.emitOps(OpLess, OpNot)
	case lexer.Less:
		p.emitOp(OpLess)
	case lexer.LessEqual:
		p.emitOps(OpGreater, OpNot)
	}
}

// power is right-associative: parse the RHS at its own precedence, not
// precedence+1.
func (p *Parser) power(canAssign bool) {
	p.parsePrecedence(precPower)
	p.emitOp(OpPower)
}

func (p *Parser) and_(canAssign bool) {
	endJump := p.emitJump(OpJumpIfFalse)
	p.emitOp(OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func (p *Parser) or_(canAssign bool) {
	elseJump := p.emitJump(OpJumpIfFalse)
	endJump := p.emitJump(OpJump)
	p.patchJump(elseJump)
	p.emitOp(OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func (p *Parser) call(canAssign bool) {
	argCount := p.argumentList()
	p.emitOp(OpCall)
	p.emitByte(byte(argCount))
}

func (p *Parser) argumentList() int {
	count := 0
	if !p.check(lexer.RightParen) {
		for {
			p.expression()
			if count == 255 {
				p.errorAtPrev("can't have more than 255 arguments")
			}
			count++
			if !p.match(lexer.Comma) {
				break
			}
		}
	}
	p.consume(lexer.RightParen, "expect ')' after arguments")
	return count
}

func (p *Parser) dot(canAssign bool) {
	p.consume(lexer.Identifier, "expect property name after '.'")
	name := string(p.previous.Lexeme)
	p.emitConstant(FromObj(p.heap.InternString(name)))
	if canAssign && p.match(lexer.Equal) {
		p.expression()
		p.emitOp(OpStoreSubscr)
		return
	}
	p.emitOp(OpIndexSubscr)
}

func (p *Parser) subscript(canAssign bool) {
	p.expression()
	p.consume(lexer.RightBracket, "expect ']' after index")
	if canAssign && p.match(lexer.Equal) {
		p.expression()
		p.emitOp(OpStoreSubscr)
		return
	}
	p.emitOp(OpIndexSubscr)
}

func (p *Parser) listLiteral(canAssign bool) {
	count := 0
	if !p.check(lexer.RightBracket) {
		for {
			p.expression()
			count++
			if !p.match(lexer.Comma) {
				break
			}
		}
	}
	p.consume(lexer.RightBracket, "expect ']' after list elements")
	p.emitOperand(OpBuildList, count)
}

func (p *Parser) mapLiteral(canAssign bool) {
	count := 0
	if !p.check(lexer.RightBrace) {
		for {
			p.expression()
			p.consume(lexer.Colon, "expect ':' after map key")
			p.expression()
			count++
			if !p.match(lexer.Comma) {
				break
			}
		}
	}
	p.consume(lexer.RightBrace, "expect '}' after map entries")
	p.emitOperand(OpBuildMap, count)
}

var compoundOps = map[lexer.Kind]OpCode{
	lexer.PlusEqual:    OpAdd,
	lexer.MinusEqual:   OpSubtract,
	lexer.StarEqual:    OpMultiply,
	lexer.SlashEqual:   OpDivide,
	lexer.PercentEqual: OpModulo,
	lexer.Star2Equal:   OpPower,
}

func (p *Parser) variable(canAssign bool) {
	name := string(p.previous.Lexeme)
	p.namedVariable(name, canAssign)
}

func (p *Parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp OpCode
	var arg int

	if slot, ok := resolveLocal(p.compiler, name); ok {
		if p.compiler.locals[slot].depth == -1 {
			p.errorAtPrev("can't read local variable in its own initializer")
		}
		getOp, setOp, arg = OpGetLocal, OpSetLocal, slot
	} else if up, ok := resolveUpvalue(p.compiler, name); ok {
		getOp, setOp, arg = OpGetUpvalue, OpSetUpvalue, up
	} else {
		getOp, setOp, arg = OpGetGlobal, OpSetGlobal, p.identifierConstant(name)
	}

	if canAssign && p.match(lexer.Equal) {
		p.expression()
		p.emitOperand(setOp, arg)
		return
	}
	if canAssign && p.isCompoundAssignToken() {
		p.advance()
		op := compoundOps[p.previous.Kind]
		p.emitOperand(getOp, arg)
		p.expression()
		p.emitOp(op)
		p.emitOperand(setOp, arg)
		return
	}
	p.emitOperand(getOp, arg)
}
