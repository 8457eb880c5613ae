// Package console implements the parameter editor served over the serial
// port. The format is meant to be easy to drive from a script as well as
// from a terminal.
package console

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/sweeney/dust-relay/internal/nvparam"
)

// Control characters.
const (
	BS  = 0x08
	BEL = 0x07
	CR  = '\r'
	LF  = '\n'
)

// MaxInputLen is the longest accepted number, sign included.
const MaxInputLen = 6

const (
	labelWidth = 30
	valueWidth = 5
	newline    = "\r\n"
)

// Store is the parameter access the console needs.
type Store interface {
	Get(i nvparam.Index) (nvparam.Value, error)
	Set(i nvparam.Index, v nvparam.Value) error
	Range(i nvparam.Index) (label string, min, max nvparam.Value, err error)
	Len() int
}

// IsEntry reports whether b, the first byte received, opens the console.
func IsEntry(b byte) bool {
	return b == CR || b == LF
}

// Console is one editing session.
type Console struct {
	in      io.ByteReader
	out     *printer
	store   Store
	version string
}

// New creates a console reading keystrokes from in and echoing to out.
func New(in io.ByteReader, out io.Writer, store Store, version string) *Console {
	return &Console{
		in:      in,
		out:     &printer{w: out},
		store:   store,
		version: version,
	}
}

// Prompt runs the session until the user exits with 0. It returns the
// first input, output or storage error.
func (c *Console) Prompt() error {
	c.out.println("# dust-relay v" + c.version)
	if err := c.list(); err != nil {
		return err
	}

	for {
		c.out.print(newline + "> ")
		if c.out.err != nil {
			return c.out.err
		}

		index, ok, err := c.readInt()
		if err != nil {
			return err
		}
		if !ok {
			if err := c.list(); err != nil {
				return err
			}
			continue
		}
		if index == 0 {
			return c.out.err
		}

		if err := c.edit(nvparam.Index(index - 1)); err != nil {
			return err
		}
	}
}

// edit shows the current value of parameter i and applies a new one.
func (c *Console) edit(i nvparam.Index) error {
	if i < 0 || int(i) >= c.store.Len() {
		c.out.println("Err:" + message(nvparam.ErrIndexOutOfRange))
		return c.out.err
	}

	current, err := c.store.Get(i)
	if err != nil {
		return err
	}
	c.out.print(fmt.Sprintf("%d < ", current))

	v, ok, err := c.readInt()
	if err != nil || !ok {
		return err
	}

	switch {
	case v > math.MaxInt16:
		err = nvparam.ErrValueTooLarge
	case v < math.MinInt16:
		err = nvparam.ErrValueTooSmall
	default:
		err = c.store.Set(i, nvparam.Value(v))
	}
	if err == nil {
		return c.out.err
	}
	msg := message(err)
	if msg == "" {
		return err
	}
	c.out.println("Err:" + msg)
	return c.out.err
}

// list prints every parameter with its range.
func (c *Console) list() error {
	for i := 0; i < c.store.Len(); i++ {
		label, min, max, err := c.store.Range(nvparam.Index(i))
		if err != nil {
			return err
		}
		v, err := c.store.Get(nvparam.Index(i))
		if err != nil {
			return err
		}
		c.out.println(fmt.Sprintf("%2d %*s = %*d  [%d:%d]", i+1, labelWidth, label, valueWidth, v, min, max))
	}
	c.out.println(newline + " 0 exit")
	return c.out.err
}

// readInt reads an edited line. ok is false for an empty line.
func (c *Console) readInt() (v int, ok bool, err error) {
	line, err := c.readLine()
	if err != nil || len(line) == 0 {
		return 0, false, err
	}
	return atoi(line), true, nil
}

// readLine collects digits and a leading minus sign until CR or LF.
// Backspace erases, anything else is refused with a bell.
func (c *Console) readLine() ([]byte, error) {
	var buf [MaxInputLen]byte
	n := 0

	for {
		b, err := c.in.ReadByte()
		if err != nil {
			return nil, err
		}

		switch {
		case b == CR || b == LF:
			c.out.print(newline)
			return buf[:n], c.out.err
		case b == BS && n > 0:
			c.out.write(BS, ' ', BS)
			n--
		case n < MaxInputLen && (isDigit(b) || (b == '-' && n == 0)):
			c.out.write(b)
			buf[n] = b
			n++
		default:
			c.out.write(BEL)
		}
	}
}

// message maps a store error to its console text.
func message(err error) string {
	switch {
	case errors.Is(err, nvparam.ErrIndexOutOfRange):
		return "Out of range"
	case errors.Is(err, nvparam.ErrValueTooLarge):
		return "Too big"
	case errors.Is(err, nvparam.ErrValueTooSmall):
		return "Too small"
	}
	return ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// atoi reads a sign and digits, giving 0 for a lone sign.
func atoi(s []byte) int {
	v, err := strconv.Atoi(string(s))
	if err != nil {
		return 0
	}
	return v
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) write(b ...byte) {
	if p.err != nil {
		return
	}
	_, p.err = p.w.Write(b)
}

func (p *printer) print(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) println(s string) {
	p.print(s + newline)
}
