// Package chunk implements the bytecode buffer: an append-only byte
// stream, a constant pool, and a run-length-encoded line map, plus the
// disassembler used by the --disassembly CLI flag.
package chunk

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"loxvm/internal/value"
)

// OpCode is a single bytecode instruction tag.
type OpCode byte

const (
	OpConstant OpCode = iota
	OpConstantLong
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpGetLocalLong
	OpSetLocal
	OpSetLocalLong
	OpGetGlobal
	OpGetGlobalLong
	OpDefineGlobal
	OpDefineGlobalLong
	OpSetGlobal
	OpSetGlobalLong
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpReturn
)

var opNames = [...]string{
	OpConstant:         "OP_CONSTANT",
	OpConstantLong:     "OP_CONSTANT_LONG",
	OpNil:              "OP_NIL",
	OpTrue:             "OP_TRUE",
	OpFalse:            "OP_FALSE",
	OpPop:              "OP_POP",
	OpGetLocal:         "OP_GET_LOCAL",
	OpGetLocalLong:     "OP_GET_LOCAL_LONG",
	OpSetLocal:         "OP_SET_LOCAL",
	OpSetLocalLong:     "OP_SET_LOCAL_LONG",
	OpGetGlobal:        "OP_GET_GLOBAL",
	OpGetGlobalLong:    "OP_GET_GLOBAL_LONG",
	OpDefineGlobal:     "OP_DEFINE_GLOBAL",
	OpDefineGlobalLong: "OP_DEFINE_GLOBAL_LONG",
	OpSetGlobal:        "OP_SET_GLOBAL",
	OpSetGlobalLong:    "OP_SET_GLOBAL_LONG",
	OpEqual:            "OP_EQUAL",
	OpGreater:          "OP_GREATER",
	OpLess:             "OP_LESS",
	OpAdd:              "OP_ADD",
	OpSubtract:         "OP_SUBTRACT",
	OpMultiply:         "OP_MULTIPLY",
	OpDivide:           "OP_DIVIDE",
	OpNot:              "OP_NOT",
	OpNegate:           "OP_NEGATE",
	OpPrint:            "OP_PRINT",
	OpJump:             "OP_JUMP",
	OpJumpIfFalse:      "OP_JUMP_IF_FALSE",
	OpLoop:             "OP_LOOP",
	OpReturn:           "OP_RETURN",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("OP_%d", op)
}

// MaxShortIndex is the largest constant/global index expressible in the
// 1-byte operand form; larger indices use the 4-byte little-endian form.
const MaxShortIndex = 255

// lineRun is one run in the line map: `count` consecutive bytes all
// belong to source line `line`.
type lineRun struct {
	line  int
	count int
}

// Chunk is one compiled unit: bytecode, its constant pool, and a
// run-length-encoded parallel line map for diagnostics.
type Chunk struct {
	Code      []byte
	Constants []value.Value
	lines     []lineRun
}

// New returns an empty Chunk.
func New() *Chunk {
	return &Chunk{}
}

// Write appends a byte to the code stream, extending the line map: a
// write for the same line as the last run increments that run's count,
// otherwise a new run is appended.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	if n := len(c.lines); n > 0 && c.lines[n-1].line == line {
		c.lines[n-1].count++
		return
	}
	c.lines = append(c.lines, lineRun{line: line, count: 1})
}

// LineAt returns the source line responsible for the byte at offset,
// walking the RLE runs until offset is covered.
func (c *Chunk) LineAt(offset int) int {
	pos := 0
	for _, run := range c.lines {
		pos += run.count
		if offset < pos {
			return run.line
		}
	}
	if len(c.lines) > 0 {
		return c.lines[len(c.lines)-1].line
	}
	return 0
}

// AddConstant appends v to the constant pool and returns its index.
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// WriteConstant adds v to the constant pool and emits either
// OP_CONSTANT + 1-byte index or OP_CONSTANT_LONG + 4-byte little-endian
// index, choosing by index magnitude. Returns the stored index.
func (c *Chunk) WriteConstant(v value.Value, line int) int {
	idx := c.AddConstant(v)
	if idx <= MaxShortIndex {
		c.Write(byte(OpConstant), line)
		c.Write(byte(idx), line)
		return idx
	}
	c.Write(byte(OpConstantLong), line)
	c.writeLongIndex(uint32(idx), line)
	return idx
}

// writeLongIndex emits a 4-byte little-endian index, one byte per Write
// call so the line map stays accurate for each emitted byte.
func (c *Chunk) writeLongIndex(idx uint32, line int) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], idx)
	for _, b := range buf {
		c.Write(b, line)
	}
}

// ReadLongIndex decodes a 4-byte little-endian index starting at offset.
func ReadLongIndex(code []byte, offset int) uint32 {
	return binary.LittleEndian.Uint32(code[offset : offset+4])
}

// WriteShort emits a 16-bit big-endian operand (jump/loop offsets),
// returning the code offset of its first byte so the caller can patch it
// later.
func (c *Chunk) WriteShort(v uint16, line int) int {
	at := len(c.Code)
	c.Write(byte(v>>8), line)
	c.Write(byte(v), line)
	return at
}

// PatchShort overwrites the 16-bit big-endian operand at offset.
func (c *Chunk) PatchShort(offset int, v uint16) {
	c.Code[offset] = byte(v >> 8)
	c.Code[offset+1] = byte(v)
}

// ReadShort decodes a 16-bit big-endian operand starting at offset.
func ReadShort(code []byte, offset int) uint16 {
	return uint16(code[offset])<<8 | uint16(code[offset+1])
}

// Disassemble writes a human-readable listing of the chunk to w, headed
// by name and trailed by a byte/constant-count summary.
func (c *Chunk) Disassemble(w io.Writer, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		offset = c.disassembleInstruction(w, offset)
	}
	fmt.Fprintf(w, "-- %s, %s constants --\n",
		humanize.Bytes(uint64(len(c.Code))), humanize.Comma(int64(len(c.Constants))))
}

func (c *Chunk) disassembleInstruction(w io.Writer, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)
	if offset > 0 && c.LineAt(offset) == c.LineAt(offset-1) {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", c.LineAt(offset))
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant:
		return c.constantInstruction(w, op, offset)
	case OpConstantLong:
		return c.constantLongInstruction(w, op, offset)
	case OpGetLocal, OpSetLocal:
		return c.byteInstruction(w, op, offset)
	case OpGetLocalLong, OpSetLocalLong:
		return c.longByteInstruction(w, op, offset)
	case OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		return c.constantInstruction(w, op, offset)
	case OpGetGlobalLong, OpDefineGlobalLong, OpSetGlobalLong:
		return c.constantLongInstruction(w, op, offset)
	case OpJump, OpJumpIfFalse, OpLoop:
		return c.jumpInstruction(w, op, offset)
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess, OpAdd,
		OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate, OpPrint, OpReturn:
		return c.simpleInstruction(w, op, offset)
	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", op)
		return offset + 1
	}
}

func (c *Chunk) simpleInstruction(w io.Writer, op OpCode, offset int) int {
	fmt.Fprintf(w, "%s\n", op)
	return offset + 1
}

func (c *Chunk) constantInstruction(w io.Writer, op OpCode, offset int) int {
	idx := c.Code[offset+1]
	fmt.Fprintf(w, "%-20s %4d '%s'\n", op, idx, value.Display(c.Constants[idx]))
	return offset + 2
}

func (c *Chunk) constantLongInstruction(w io.Writer, op OpCode, offset int) int {
	idx := ReadLongIndex(c.Code, offset+1)
	fmt.Fprintf(w, "%-20s %4d '%s'\n", op, idx, value.Display(c.Constants[idx]))
	return offset + 5
}

func (c *Chunk) byteInstruction(w io.Writer, op OpCode, offset int) int {
	slot := c.Code[offset+1]
	fmt.Fprintf(w, "%-20s %4d\n", op, slot)
	return offset + 2
}

func (c *Chunk) longByteInstruction(w io.Writer, op OpCode, offset int) int {
	slot := ReadLongIndex(c.Code, offset+1)
	fmt.Fprintf(w, "%-20s %4d\n", op, slot)
	return offset + 5
}

func (c *Chunk) jumpInstruction(w io.Writer, op OpCode, offset int) int {
	jumpOffset := ReadShort(c.Code, offset+1)
	sign := 1
	if op == OpLoop {
		sign = -1
	}
	fmt.Fprintf(w, "%-20s %4d -> %d\n", op, offset, offset+3+sign*int(jumpOffset))
	return offset + 3
}
