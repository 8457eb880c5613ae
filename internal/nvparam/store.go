package nvparam

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// Store gives bounds-checked access to the parameter table persisted in an
// EEPROM. It is owned by the foreground loop and is not safe for
// concurrent use.
type Store struct {
	mem   EEPROM
	table []Param
	sum   uint16
}

// New creates a store for table over mem. Call Init before use.
func New(mem EEPROM, table []Param) (*Store, error) {
	if need := ImageSize(table); mem.Size() < need {
		return nil, fmt.Errorf("eeprom too small: %d bytes, table needs %d", mem.Size(), need)
	}
	return &Store{
		mem:   mem,
		table: table,
		sum:   Checksum(table),
	}, nil
}

// Init validates the persisted checksum against the schema and restores
// all defaults on mismatch. It reports whether a reset took place.
func (s *Store) Init() (bool, error) {
	stored, err := s.mem.Read16(checksumAddr)
	if err != nil {
		return false, fmt.Errorf("read checksum: %w", err)
	}
	if stored == s.sum {
		return false, nil
	}

	log.Info("parameter schema changed, restoring defaults", "stored", fmt.Sprintf("%04x", stored), "expected", fmt.Sprintf("%04x", s.sum))
	if err := s.ResetAll(); err != nil {
		return false, err
	}
	return true, nil
}

// ResetAll writes every default in index order and the checksum last, so an
// interrupted reset never leaves a valid checksum over partial data.
func (s *Store) ResetAll() error {
	for i, p := range s.table {
		if err := s.mem.Write16(valueAddr(Index(i)), uint16(p.Default)); err != nil {
			return fmt.Errorf("write default %s: %w", p.Name, err)
		}
	}
	if err := s.mem.Write16(checksumAddr, s.sum); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}
	return nil
}

// Get returns the stored value of parameter i.
func (s *Store) Get(i Index) (Value, error) {
	if !s.valid(i) {
		return 0, ErrIndexOutOfRange
	}
	w, err := s.mem.Read16(valueAddr(i))
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.table[i].Name, err)
	}
	return Value(w), nil
}

// Int is Get for callers that already trust i, such as the boot sequence.
// It returns the default when the value cannot be read.
func (s *Store) Int(i Index) int {
	v, err := s.Get(i)
	if err != nil {
		log.Warn("parameter read failed, using default", "index", int(i), "err", err)
		if s.valid(i) {
			return int(s.table[i].Default)
		}
		return 0
	}
	return int(v)
}

// Set validates v against the bounds of parameter i and stores it.
// Storage is left untouched when validation fails.
func (s *Store) Set(i Index, v Value) error {
	if !s.valid(i) {
		return ErrIndexOutOfRange
	}
	p := s.table[i]
	if v > p.Max {
		return ErrValueTooLarge
	}
	if v < p.Min {
		return ErrValueTooSmall
	}
	if err := s.mem.Write16(valueAddr(i), uint16(v)); err != nil {
		return fmt.Errorf("write %s: %w", p.Name, err)
	}
	return nil
}

// Range returns the label and inclusive bounds of parameter i.
func (s *Store) Range(i Index) (label string, min, max Value, err error) {
	if !s.valid(i) {
		return "", 0, 0, ErrIndexOutOfRange
	}
	p := s.table[i]
	return p.Label, p.Min, p.Max, nil
}

// Len returns the number of parameters.
func (s *Store) Len() int {
	return len(s.table)
}

func (s *Store) valid(i Index) bool {
	return i >= 0 && int(i) < len(s.table)
}
