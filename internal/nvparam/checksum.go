package nvparam

// Running-cipher constants. The cipher feedback gives every input byte an
// effect on all of the bytes that follow it.
const (
	cipherSeed = 55665
	cipherC1   = 52845
	cipherC2   = 22719
)

// Checksum digests the schema (count, labels, min, max, default) in index
// order. Values are not covered: it detects a firmware/EEPROM schema
// mismatch, not corrupted values.
func Checksum(table []Param) uint16 {
	d := digest{r: cipherSeed}

	d.word(uint16(len(table)))
	for _, p := range table {
		for i := 0; i < len(p.Label); i++ {
			d.byte(p.Label[i])
		}
		d.word(uint16(p.Min))
		d.word(uint16(p.Max))
		d.word(uint16(p.Default))
	}

	return d.sum
}

type digest struct {
	r   uint16
	sum uint16
}

func (d *digest) byte(b byte) {
	cipher := b ^ byte(d.r>>8)
	d.r = (uint16(cipher)+d.r)*cipherC1 + cipherC2
	d.sum += uint16(cipher)
}

func (d *digest) word(w uint16) {
	d.byte(byte(w))
	d.byte(byte(w >> 8))
}
