package nvparam

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// DefaultSize matches the EEPROM of the reference micro-controller.
const DefaultSize = 512

// erased is the content of a blank EEPROM cell.
const erased = 0xFF

// EEPROM is a flat byte-addressed non-volatile memory starting at 0,
// accessed in little-endian words.
type EEPROM interface {
	Read16(addr int) (uint16, error)
	Write16(addr int, v uint16) error
	Size() int
}

// Memory is a RAM-backed EEPROM. It starts erased.
type Memory struct {
	data []byte
}

// NewMemory creates an erased memory of the given size.
func NewMemory(size int) *Memory {
	data := make([]byte, size)
	for i := range data {
		data[i] = erased
	}
	return &Memory{data: data}
}

// Bytes exposes the raw image, mainly for tests.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) Size() int {
	return len(m.data)
}

func (m *Memory) Read16(addr int) (uint16, error) {
	if err := checkAddr(addr, 2, len(m.data)); err != nil {
		return 0, err
	}
	return uint16(m.data[addr]) | uint16(m.data[addr+1])<<8, nil
}

func (m *Memory) Write16(addr int, v uint16) error {
	if err := checkAddr(addr, 2, len(m.data)); err != nil {
		return err
	}
	m.data[addr] = byte(v)
	m.data[addr+1] = byte(v >> 8)
	return nil
}

// File is an EEPROM image persisted to disk. Every write goes straight
// through to the file.
type File struct {
	f   *os.File
	mem *Memory
}

// OpenFile opens the image at path, creating an erased one of the given
// size if it does not exist. A shorter existing image is padded with
// erased bytes.
func OpenFile(path string, size int) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open eeprom image: %w", err)
	}

	mem := NewMemory(size)
	n, err := f.ReadAt(mem.data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, fmt.Errorf("read eeprom image: %w", err)
	}
	if n < size {
		// Short or new image: persist the erased tail.
		if _, werr := f.WriteAt(mem.data[n:], int64(n)); werr != nil {
			f.Close()
			return nil, fmt.Errorf("initialise eeprom image: %w", werr)
		}
	}

	return &File{f: f, mem: mem}, nil
}

func (e *File) Size() int {
	return e.mem.Size()
}

func (e *File) Read16(addr int) (uint16, error) {
	return e.mem.Read16(addr)
}

func (e *File) Write16(addr int, v uint16) error {
	if err := e.mem.Write16(addr, v); err != nil {
		return err
	}
	return e.flush(addr, 2)
}

func (e *File) flush(addr, n int) error {
	if _, err := e.f.WriteAt(e.mem.data[addr:addr+n], int64(addr)); err != nil {
		return fmt.Errorf("write eeprom image: %w", err)
	}
	if err := e.f.Sync(); err != nil {
		return fmt.Errorf("sync eeprom image: %w", err)
	}
	return nil
}

// Close releases the image file.
func (e *File) Close() error {
	return e.f.Close()
}

func checkAddr(addr, n, size int) error {
	if addr < 0 || addr+n > size {
		return fmt.Errorf("eeprom address %d+%d outside 0..%d", addr, n, size)
	}
	return nil
}
