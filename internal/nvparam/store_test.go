package nvparam

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable mirrors the shapes used by the device: unsigned, signed and
// boolean parameters.
var testTable = []Param{
	{Name: "paramUnsigned", Label: "Unsigned parameter", Min: 0, Max: 32767, Default: 9999},
	{Name: "paramSigned", Label: "Signed parameter", Min: -100, Max: 100, Default: 0},
	{Name: "paramBool0", Label: "Bool default 0", Min: 0, Max: 1, Default: 0},
	{Name: "paramBool1", Label: "Bool default 1", Min: 0, Max: 1, Default: 1},
}

func newTestStore(t *testing.T, mem *Memory, table []Param) *Store {
	t.Helper()
	s, err := New(mem, table)
	require.NoError(t, err)
	return s
}

func TestInitOnErasedEEPROMResets(t *testing.T) {
	mem := NewMemory(DefaultSize)
	s := newTestStore(t, mem, testTable)

	reset, err := s.Init()
	require.NoError(t, err)
	assert.True(t, reset, "erased eeprom must be reset")

	for i, p := range testTable {
		v, err := s.Get(Index(i))
		require.NoError(t, err)
		assert.Equal(t, p.Default, v, "param %s", p.Name)
	}
}

func TestResetAllRestoresDefaults(t *testing.T) {
	s := newTestStore(t, NewMemory(DefaultSize), testTable)
	_, err := s.Init()
	require.NoError(t, err)

	require.NoError(t, s.Set(0, 777))
	require.NoError(t, s.Set(1, -5))
	require.NoError(t, s.ResetAll())

	for i, p := range testTable {
		v, err := s.Get(Index(i))
		require.NoError(t, err)
		assert.Equal(t, p.Default, v, "param %s", p.Name)
	}
}

func TestInitAfterResetAllDoesNotReset(t *testing.T) {
	mem := NewMemory(DefaultSize)
	s := newTestStore(t, mem, testTable)
	require.NoError(t, s.ResetAll())
	require.NoError(t, s.Set(0, 1234))

	reset, err := s.Init()
	require.NoError(t, err)
	assert.False(t, reset)

	v, err := s.Get(0)
	require.NoError(t, err)
	assert.Equal(t, Value(1234), v, "value must survive a matching init")
}

func TestSetBounds(t *testing.T) {
	s := newTestStore(t, NewMemory(DefaultSize), testTable)
	_, err := s.Init()
	require.NoError(t, err)

	tests := []struct {
		name  string
		index Index
		value Value
		want  error
	}{
		{"in range", 0, 777, nil},
		{"at max", 0, 32767, nil},
		{"at min", 1, -100, nil},
		{"bool too large", 2, 2, ErrValueTooLarge},
		{"bool too small", 2, -1, ErrValueTooSmall},
		{"signed too small", 1, -101, ErrValueTooSmall},
		{"index past end", Index(len(testTable)), 2, ErrIndexOutOfRange},
		{"negative index", -1, 0, ErrIndexOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before Value
			if s.valid(tt.index) {
				before, _ = s.Get(tt.index)
			}

			err := s.Set(tt.index, tt.value)
			if tt.want == nil {
				require.NoError(t, err)
				got, err := s.Get(tt.index)
				require.NoError(t, err)
				assert.Equal(t, tt.value, got)
				return
			}

			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			if s.valid(tt.index) {
				got, _ := s.Get(tt.index)
				assert.Equal(t, before, got, "storage must not change on rejection")
			}
		})
	}
}

func TestSchemaChangeTriggersReset(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(p *Param)
	}{
		{"label", func(p *Param) { p.Label = "Unsigned parameteR" }},
		{"min", func(p *Param) { p.Min = 1 }},
		{"max", func(p *Param) { p.Max = 32766 }},
		{"default", func(p *Param) { p.Default = 9998 }},
	}

	for _, m := range mutations {
		t.Run(m.name, func(t *testing.T) {
			mem := NewMemory(DefaultSize)
			s := newTestStore(t, mem, testTable)
			_, err := s.Init()
			require.NoError(t, err)
			require.NoError(t, s.Set(0, 42))
			require.NoError(t, s.Set(3, 0))

			changed := append([]Param(nil), testTable...)
			m.mutate(&changed[0])
			assert.NotEqual(t, Checksum(testTable), Checksum(changed))

			s2 := newTestStore(t, mem, changed)
			reset, err := s2.Init()
			require.NoError(t, err)
			assert.True(t, reset)

			for i, p := range changed {
				v, err := s2.Get(Index(i))
				require.NoError(t, err)
				assert.Equal(t, p.Default, v, "param %s", p.Name)
			}
		})
	}
}

func TestValueCorruptionIsNotDetected(t *testing.T) {
	mem := NewMemory(DefaultSize)
	s := newTestStore(t, mem, testTable)
	_, err := s.Init()
	require.NoError(t, err)

	// Flip the low byte of the first value.
	mem.Bytes()[valueAddr(0)] ^= 0x01

	reset, err := s.Init()
	require.NoError(t, err)
	assert.False(t, reset, "checksum covers the schema only")
}

func TestChecksumCorruptionTriggersReset(t *testing.T) {
	mem := NewMemory(DefaultSize)
	s := newTestStore(t, mem, testTable)
	_, err := s.Init()
	require.NoError(t, err)
	require.NoError(t, s.Set(0, 1))

	mem.Bytes()[checksumAddr+1] ^= 0x80

	reset, err := s.Init()
	require.NoError(t, err)
	assert.True(t, reset)
	v, _ := s.Get(0)
	assert.Equal(t, Value(9999), v)
}

func TestResetAllWritesChecksumLast(t *testing.T) {
	rec := &recordingEEPROM{Memory: NewMemory(DefaultSize)}
	s, err := New(rec, testTable)
	require.NoError(t, err)

	require.NoError(t, s.ResetAll())
	require.Len(t, rec.writes, len(testTable)+1)
	assert.Equal(t, checksumAddr, rec.writes[len(rec.writes)-1])
	for i := 0; i < len(testTable); i++ {
		assert.Equal(t, valueAddr(Index(i)), rec.writes[i])
	}
}

func TestInterruptedResetStaysInvalid(t *testing.T) {
	rec := &recordingEEPROM{Memory: NewMemory(DefaultSize), failAfter: 2}
	s, err := New(rec, testTable)
	require.NoError(t, err)

	_, err = s.Init()
	require.Error(t, err, "power loss simulated mid-reset")

	rec.failAfter = 0
	reset, err := s.Init()
	require.NoError(t, err)
	assert.True(t, reset, "half-written table must not look valid")
}

func TestRange(t *testing.T) {
	s := newTestStore(t, NewMemory(DefaultSize), testTable)

	label, min, max, err := s.Range(0)
	require.NoError(t, err)
	assert.Equal(t, "Unsigned parameter", label)
	assert.Equal(t, Value(0), min)
	assert.Equal(t, Value(32767), max)

	_, _, _, err = s.Range(Index(len(testTable)))
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, len(testTable), s.Len())
}

func TestNewRejectsSmallEEPROM(t *testing.T) {
	_, err := New(NewMemory(ImageSize(testTable)-1), testTable)
	assert.Error(t, err)
}

func TestDeviceTableDefaultsInRange(t *testing.T) {
	for _, p := range Table {
		assert.LessOrEqual(t, p.Min, p.Default, p.Name)
		assert.LessOrEqual(t, p.Default, p.Max, p.Name)
	}
	assert.Equal(t, "centerFrequency", Table[CenterFrequency].Name)
	assert.Equal(t, "fftToWattRatio", Table[FFTToWattRatio].Name)
}

func TestFileEEPROMPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.bin")

	f, err := OpenFile(path, DefaultSize)
	require.NoError(t, err)
	s, err := New(f, Table)
	require.NoError(t, err)
	reset, err := s.Init()
	require.NoError(t, err)
	assert.True(t, reset)
	require.NoError(t, s.Set(PowerThreshold, 120))
	require.NoError(t, f.Close())

	f, err = OpenFile(path, DefaultSize)
	require.NoError(t, err)
	defer f.Close()
	s, err = New(f, Table)
	require.NoError(t, err)
	reset, err = s.Init()
	require.NoError(t, err)
	assert.False(t, reset)
	v, err := s.Get(PowerThreshold)
	require.NoError(t, err)
	assert.Equal(t, Value(120), v)
}

// recordingEEPROM records write addresses and can fail after n writes.
type recordingEEPROM struct {
	*Memory
	writes    []int
	failAfter int
}

func (r *recordingEEPROM) Write16(addr int, v uint16) error {
	if r.failAfter > 0 && len(r.writes) >= r.failAfter {
		return errors.New("power lost")
	}
	r.writes = append(r.writes, addr)
	return r.Memory.Write16(addr, v)
}
