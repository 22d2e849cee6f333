// Package vm implements the stack-based virtual machine: instruction
// dispatch, the operand stack, the globals table, and the arithmetic,
// comparison, and runtime-error semantics of the bytecode ABI emitted by
// internal/compiler.
package vm

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/exp/slices"

	"loxvm/internal/chunk"
	"loxvm/internal/compiler"
	"loxvm/internal/intern"
	"loxvm/internal/value"
)

// StackMax is the VM's fixed operand-stack capacity, matching the
// original implementation's STACK_MAX.
const StackMax = 65535

// Result is the outcome of one Interpret call.
type Result int

const (
	Ok Result = iota
	CompileError
	RuntimeError
)

// VM holds all interpreter state for one source's lifetime: the chunk and
// instruction pointer, the operand stack, the globals table, the interned
// string table, and the heap-object teardown list. There are no call
// frames, upvalues, or shared/concurrent state — the language has no
// functions and execution is single-threaded (see SPEC_FULL.md §6).
type VM struct {
	chunk *chunk.Chunk
	ip    int

	stack    [StackMax]value.Value
	stackTop int

	globals map[string]value.Value
	strings *intern.Table
	objects value.Object

	Stdout io.Writer
}

// New returns a VM ready to Interpret source. Stdout defaults to
// os.Stdout; override it (e.g. in tests) before calling Interpret.
func New() *VM {
	return &VM{
		globals: make(map[string]value.Value),
		strings: intern.New(),
		Stdout:  os.Stdout,
	}
}

// Free releases every heap object allocated during this VM's lifetime by
// walking the object list, matching the "simple free-on-shutdown"
// non-goal in SPEC_FULL.md §1 (there is no tracing collector). Go's own
// GC reclaims the memory once the list is unreferenced; the walk exists
// to mirror freeVM()'s object-list traversal, and Free returns the number
// of objects it walked.
func (vm *VM) Free() int {
	freed := 0
	for obj := vm.objects; obj != nil; obj = obj.Next() {
		freed++
	}
	vm.objects = nil
	vm.globals = make(map[string]value.Value)
	vm.strings = intern.New()
	return freed
}

func (vm *VM) push(v value.Value) bool {
	if vm.stackTop >= StackMax {
		return false
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
	return true
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
}

// internString canonicalizes chars through the VM's interning table,
// linking any freshly allocated string onto the heap-object list.
func (vm *VM) internString(chars string) *value.ObjString {
	s, objects := vm.strings.Intern(chars, vm.objects)
	vm.objects = objects
	return s
}

// Interpret compiles source and, if compilation succeeds, runs it. This
// is the toolchain's single external entry point, per SPEC_FULL.md §1.
func (vm *VM) Interpret(source string) (Result, []string) {
	c, objects, errs := compiler.Compile(source, vm.strings, vm.objects)
	vm.objects = objects
	if len(errs) > 0 {
		return CompileError, errs
	}
	vm.chunk = c
	vm.ip = 0
	if err := vm.run(); err != nil {
		return RuntimeError, []string{err.Error()}
	}
	return Ok, nil
}

func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	line := 0
	if vm.chunk != nil && vm.ip > 0 {
		line = vm.chunk.LineAt(vm.ip - 1)
	}
	vm.resetStack()
	return fmt.Errorf("[line %d] %s", line, msg)
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	v := chunk.ReadShort(vm.chunk.Code, vm.ip)
	vm.ip += 2
	return v
}

func (vm *VM) readLongIndex() uint32 {
	v := chunk.ReadLongIndex(vm.chunk.Code, vm.ip)
	vm.ip += 4
	return v
}

func (vm *VM) readConstant() value.Value {
	return vm.chunk.Constants[vm.readByte()]
}

func (vm *VM) readConstantLong() value.Value {
	return vm.chunk.Constants[vm.readLongIndex()]
}

// run is the instruction dispatch loop: fetch the opcode at ip, advance,
// dispatch. Operand reads consume the widths fixed by the opcode table in
// SPEC_FULL.md §4.5.
func (vm *VM) run() error {
	for {
		op := chunk.OpCode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			if !vm.push(vm.readConstant()) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpConstantLong:
			if !vm.push(vm.readConstantLong()) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpNil:
			if !vm.push(value.NilValue) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpTrue:
			if !vm.push(value.BoolValue(true)) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpFalse:
			if !vm.push(value.BoolValue(false)) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpPop:
			vm.pop()

		case chunk.OpGetLocal:
			slot := vm.readByte()
			if !vm.push(vm.stack[slot]) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpGetLocalLong:
			slot := vm.readLongIndex()
			if !vm.push(vm.stack[slot]) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpSetLocal:
			slot := vm.readByte()
			vm.stack[slot] = vm.peek(0)
		case chunk.OpSetLocalLong:
			slot := vm.readLongIndex()
			vm.stack[slot] = vm.peek(0)

		case chunk.OpGetGlobal:
			name := value.AsString(vm.readConstant())
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			if !vm.push(v) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpGetGlobalLong:
			name := value.AsString(vm.readConstantLong())
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			if !vm.push(v) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpDefineGlobal:
			name := value.AsString(vm.readConstant())
			vm.globals[name] = vm.pop()
		case chunk.OpDefineGlobalLong:
			name := value.AsString(vm.readConstantLong())
			vm.globals[name] = vm.pop()
		case chunk.OpSetGlobal:
			name := value.AsString(vm.readConstant())
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.globals[name] = vm.peek(0)
		case chunk.OpSetGlobalLong:
			name := value.AsString(vm.readConstantLong())
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.globals[name] = vm.peek(0)

		case chunk.OpEqual:
			b, a := vm.pop(), vm.pop()
			if !vm.push(value.BoolValue(value.Equal(a, b))) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpGreater:
			if err := vm.numericComparison(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.numericComparison(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.numericBinary(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.numericBinary(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.numericBinary(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case chunk.OpNot:
			if !vm.push(value.BoolValue(value.IsFalsy(vm.pop()))) {
				return vm.runtimeError("Stack overflow.")
			}
		case chunk.OpNegate:
			if vm.peek(0).Type != value.Number {
				return vm.runtimeError("Operand must be a number.")
			}
			n := vm.pop().Number
			if !vm.push(value.NumberValue(-n)) {
				return vm.runtimeError("Stack overflow.")
			}

		case chunk.OpPrint:
			fmt.Fprintln(vm.Stdout, value.Display(vm.pop()))

		case chunk.OpJump:
			offset := vm.readShort()
			vm.ip += int(offset)
		case chunk.OpJumpIfFalse:
			offset := vm.readShort()
			if value.IsFalsy(vm.peek(0)) {
				vm.ip += int(offset)
			}
		case chunk.OpLoop:
			offset := vm.readShort()
			vm.ip -= int(offset)

		case chunk.OpReturn:
			return nil

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) numericBinary(f func(a, b float64) float64) error {
	if vm.peek(0).Type != value.Number || vm.peek(1).Type != value.Number {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop(), vm.pop()
	if !vm.push(value.NumberValue(f(a.Number, b.Number))) {
		return vm.runtimeError("Stack overflow.")
	}
	return nil
}

func (vm *VM) numericComparison(f func(a, b float64) bool) error {
	if vm.peek(0).Type != value.Number || vm.peek(1).Type != value.Number {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, a := vm.pop(), vm.pop()
	if !vm.push(value.BoolValue(f(a.Number, b.Number))) {
		return vm.runtimeError("Stack overflow.")
	}
	return nil
}

// add implements ADD's dual number/string semantics: numeric sum, string
// concatenation (producing a freshly interned string), or a runtime error
// for any other operand combination.
func (vm *VM) add() error {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.Type == value.Number && b.Type == value.Number:
		vm.pop()
		vm.pop()
		if !vm.push(value.NumberValue(a.Number + b.Number)) {
			return vm.runtimeError("Stack overflow.")
		}
	case value.IsString(a) && value.IsString(b):
		vm.pop()
		vm.pop()
		concatenated := value.AsString(a) + value.AsString(b)
		if !vm.push(value.ObjValue(vm.internString(concatenated))) {
			return vm.runtimeError("Stack overflow.")
		}
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

// GlobalNames returns the globals table's keys in sorted order, used by
// the CLI's --verbose debug dump to keep output deterministic across runs
// despite Go's randomized map iteration.
func (vm *VM) GlobalNames() []string {
	names := make([]string, 0, len(vm.globals))
	for name := range vm.globals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Global looks up a global by name, for the CLI's --verbose dump of each
// global's current value alongside GlobalNames' sorted key order.
func (vm *VM) Global(name string) (value.Value, bool) {
	v, ok := vm.globals[name]
	return v, ok
}

// InternedStrings reports how many distinct strings the VM's interning
// table currently holds, for the CLI's --verbose dump.
func (vm *VM) InternedStrings() int {
	return vm.strings.Len()
}
