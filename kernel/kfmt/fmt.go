package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize bounds the width of a formatted number, sign excluded.
const maxBufSize = 32

// rawValuer is implemented by the typed address and size values of the mem
// package so they can be passed to Printf without an explicit conversion.
type rawValuer interface {
	Raw() uint64
}

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	// numFmtBuf holds a formatted number. Digits are written right to left
	// so the result is always a suffix of the buffer.
	numFmtBuf [maxBufSize + 1]byte

	// singleByte is used as a shared buffer for passing single characters
	// to doWrite.
	singleByte = []byte(" ")

	// earlyOutput collects Printf output until the SBI console sink is
	// attached.
	earlyOutput earlyBuffer

	// outputSink is where Printf sends its output. While nil, output goes
	// to earlyOutput.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and flushes
// any output collected before a sink was available.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		earlyOutput.flushTo(w)
	}
}

// Printf provides a minimal Printf implementation that can be safely used
// before the frame allocator and the Go runtime have been initialized. This
// implementation does not allocate any memory.
//
// The following subset of the fmt verbs is supported:
//
//	%s  string or byte slice
//	%d  integer, base 10
//	%o  integer, base 8
//	%x  integer, base 16 with lower-case letters
//	%t  "true" or "false"
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes. Widths larger than maxBufSize are clamped.
//
// Integers may be any built-in integer type or any value with a Raw() uint64
// method (mem.PhysicalAddr, mem.VirtualAddr, mem.Size). io.Stringer and %p are
// not supported since both would pull in code paths that allocate.
//
// Until SetOutputSink is called, output is kept in a fixed-size buffer that
// is flushed to the sink once it gets attached.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg int
		i       int
	)

	for i < len(format) {
		if format[i] != '%' {
			writeByte(w, format[i])
			i++
			continue
		}

		width, verb, next := scanVerb(format, i+1)
		i = next

		switch verb {
		case 0:
			// format ends with a dangling '%' and optional width
		case '%':
			writeByte(w, '%')
		case 'd', 'o', 'x', 's', 't':
			if nextArg >= len(args) {
				doWrite(w, errMissingArg)
				break
			}
			fmtArg(w, verb, args[nextArg], width)
			nextArg++
		default:
			doWrite(w, errNoVerb)
		}
	}

	for ; nextArg < len(args); nextArg++ {
		doWrite(w, errExtraArg)
	}
}

// scanVerb parses an optional width followed by a verb starting at
// format[start]. It returns the verb (0 if format ends first) and the index
// of the first byte after it.
func scanVerb(format string, start int) (width int, verb byte, next int) {
	for next = start; next < len(format); next++ {
		ch := format[next]
		if ch < '0' || ch > '9' {
			return width, ch, next + 1
		}
		width = width*10 + int(ch-'0')
	}

	return width, 0, next
}

func fmtArg(w io.Writer, verb byte, arg interface{}, width int) {
	switch verb {
	case 'd':
		fmtInt(w, arg, 10, width)
	case 'o':
		fmtInt(w, arg, 8, width)
	case 'x':
		fmtInt(w, arg, 16, width)
	case 's':
		fmtString(w, arg, width)
	case 't':
		fmtBool(w, arg)
	}
}

// fmtBool prints "true" or "false". Width is ignored.
func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

// fmtString prints a string or []byte value, left-padded with spaces to
// width.
func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		fmtRepeat(w, ' ', width-len(s))
		// converting s to a byte slice would allocate
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		fmtRepeat(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

// fmtRepeat writes count bytes with value ch.
func fmtRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// intValue extracts the magnitude and sign of an integer argument.
func intValue(v interface{}) (mag uint64, neg, ok bool) {
	var sval int64

	switch t := v.(type) {
	case uint8:
		return uint64(t), false, true
	case uint16:
		return uint64(t), false, true
	case uint32:
		return uint64(t), false, true
	case uint64:
		return t, false, true
	case uint:
		return uint64(t), false, true
	case uintptr:
		return uint64(t), false, true
	case rawValuer:
		return t.Raw(), false, true
	case int8:
		sval = int64(t)
	case int16:
		sval = int64(t)
	case int32:
		sval = int64(t)
	case int64:
		sval = t
	case int:
		sval = int64(t)
	default:
		return 0, false, false
	}

	if sval < 0 {
		// wraps correctly for math.MinInt64
		return uint64(-sval), true, true
	}
	return uint64(sval), false, true
}

// fmtInt prints v in the requested base. Base-10 output is padded with
// spaces ahead of the sign; base-8 and base-16 output is zero-padded after
// it.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	mag, neg, ok := intValue(v)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	if width >= maxBufSize {
		width = maxBufSize - 1
	}

	pos := len(numFmtBuf)
	for {
		digit := mag % base
		pos--
		if digit < 10 {
			numFmtBuf[pos] = byte(digit) + '0'
		} else {
			numFmtBuf[pos] = byte(digit-10) + 'a'
		}

		if mag /= base; mag == 0 {
			break
		}
	}

	if base != 10 {
		for len(numFmtBuf)-pos < width {
			pos--
			numFmtBuf[pos] = '0'
		}
	}

	if neg {
		pos--
		numFmtBuf[pos] = '-'
	}

	for len(numFmtBuf)-pos < width {
		pos--
		numFmtBuf[pos] = ' '
	}

	doWrite(w, numFmtBuf[pos:])
}

func writeByte(w io.Writer, ch byte) {
	singleByte[0] = ch
	doWrite(w, singleByte)
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without it, the call through the yet unknown
// outputSink io.Writer makes the compiler flag p as escaping, which turns
// every Printf call into a heap allocation that crashes the kernel before the
// Go allocator is up.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyOutput.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
