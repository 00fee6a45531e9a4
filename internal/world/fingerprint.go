package world

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"lukechampine.com/blake3"
)

// Fingerprint returns a BLAKE3 digest of the elevation and moisture fields.
// Two worlds generated from the same seeds and config share a fingerprint;
// locks and settlement fields do not contribute.
func (w *World) Fingerprint() string {
	buf := make([]byte, 0, w.HexCount()*16+16)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(w.cfg.Width))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(w.cfg.Height))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(w.cfg.Erosion))
	for _, row := range w.cells {
		for _, c := range row {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.E))
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.M))
		}
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
