package cfb

import (
	"encoding/binary"
	"fmt"
)

// DecompressStream inflates a CompressedContainer (MS-OVBA §2.4.1), the
// RLE-with-back-references encoding used for VBA module source and the
// project "dir" stream.
//
// The container is a 0x01 signature byte followed by chunks.  Each chunk
// starts with a 2-byte header: bits 0–11 hold the compressed size minus 3,
// bits 12–14 must be 0b011, and bit 15 flags whether the chunk payload is
// compressed.  An uncompressed chunk carries 4096 literal bytes.  A
// compressed chunk is groups of eight tokens prefixed by a flag byte; flag
// bit clear means a literal byte, flag bit set means a 2-byte copy token
// whose offset/length split widens as the chunk fills.
func DecompressStream(s []byte) ([]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("cfb: decompress: empty stream")
	}
	if s[0] != 0x01 {
		return nil, fmt.Errorf("cfb: decompress: bad signature byte 0x%02X (want 0x01)", s[0])
	}

	var res []byte
	i := 1
	for i < len(s) {
		if i+2 > len(s) {
			return nil, fmt.Errorf("cfb: decompress: truncated chunk header at offset %d", i)
		}
		chunkHeader := binary.LittleEndian.Uint16(s[i:])
		i += 2

		chunkSize := int(chunkHeader & 0x0FFF)
		chunkSig := (chunkHeader & 0x7000) >> 12
		compressed := chunkHeader&0x8000 != 0

		if chunkSig != 0b011 {
			return nil, fmt.Errorf("cfb: decompress: bad chunk signature 0b%03b at offset %d", chunkSig, i-2)
		}

		if !compressed {
			if i+4096 > len(s) {
				return nil, fmt.Errorf("cfb: decompress: truncated raw chunk at offset %d", i)
			}
			res = append(res, s[i:i+4096]...)
			i += 4096
			continue
		}

		start := len(res)
		chunkLen := 0
	chunk:
		for i < len(s) {
			flags := s[i]
			i++
			chunkLen++

			for bit := 0; bit < 8; bit++ {
				if chunkLen > chunkSize {
					break chunk
				}
				if flags&(1<<bit) == 0 {
					// literal token
					if i >= len(s) {
						return nil, fmt.Errorf("cfb: decompress: truncated literal at offset %d", i)
					}
					res = append(res, s[i])
					i++
					chunkLen++
					continue
				}

				// copy token
				if i+2 > len(s) {
					return nil, fmt.Errorf("cfb: decompress: truncated copy token at offset %d", i)
				}
				token := binary.LittleEndian.Uint16(s[i:])
				i += 2
				chunkLen += 2

				// The offset field widens with the number of bytes already
				// decompressed in this chunk: bitCount is the smallest value
				// in [4,16) with 2^bitCount >= decompLen.
				decompLen := len(res) - start
				bitCount := 4
				for bitCount < 15 && 1<<bitCount < decompLen {
					bitCount++
				}
				lenMask := uint16(0xFFFF) >> bitCount
				length := int(token&lenMask) + 3
				offset := int(token&^lenMask)>>(16-bitCount) + 1

				if offset > len(res) {
					return nil, fmt.Errorf("cfb: decompress: copy offset %d exceeds %d decompressed bytes", offset, len(res))
				}
				// Byte-by-byte so overlapping copies replicate the run.
				for k := 0; k < length; k++ {
					res = append(res, res[len(res)-offset])
				}
			}
		}
	}
	return res, nil
}
