package record

import (
	"fmt"
	"io"
)

// Guard against corrupt length fields that would cause multi-hundred-MB
// allocations.  No legitimate BIFF12 record exceeds 10 MB.
const maxRecordLen = 10 * 1024 * 1024 // 10 MiB

// Block names a skippable record section: Begin opens it and End closes it.
// End == 0 marks a single record with no body; it is consumed and nothing
// further is skipped.
type Block struct {
	Begin int
	End   int
}

// Reader iterates over BIFF12 records from an io.Reader.
//
// Record type IDs are one or two bytes: the high bit of the first byte
// signals a second byte, and the low seven bits of each byte combine
// little-endian-first into the ID.  Record lengths are one to four bytes of
// 7-bit little-endian chunks with a continuation bit.
//
// Payload bytes are returned from an internal buffer that grows but never
// shrinks, so a slice returned by FillBuffer, Next, or NextSkipBlocks is
// only valid until the following call.
type Reader struct {
	r   io.Reader
	b   [1]byte
	buf []byte
}

// NewReader wraps an io.Reader for BIFF12 record iteration.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, buf: make([]byte, 0, 1024)}
}

func (r *Reader) readByte() (byte, error) {
	_, err := io.ReadFull(r.r, r.b[:])
	return r.b[0], err
}

// ReadType reads the next record type ID (1–2 bytes).
// It returns io.EOF only when the stream ends cleanly on a record boundary;
// a stream that ends between the two ID bytes returns a wrapped
// io.ErrUnexpectedEOF instead.
func (r *Reader) ReadType() (int, error) {
	b0, err := r.readByte()
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, io.EOF
		}
		return 0, err
	}
	if b0&0x80 == 0 {
		return int(b0), nil
	}
	b1, err := r.readByte()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("record: reading second ID byte: %w", err)
	}
	return int(b0&0x7F) | int(b1&0x7F)<<7, nil
}

// FillBuffer reads the record length (1–4 bytes of 7-bit chunks) followed by
// that many payload bytes, and returns the payload.  The returned slice
// aliases the reader's internal buffer and is overwritten by the next call.
func (r *Reader) FillBuffer() ([]byte, error) {
	b, err := r.readByte()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("record: reading length: %w", err)
	}
	recLen := int(b & 0x7F)
	for i := 1; i < 4 && b&0x80 != 0; i++ {
		b, err = r.readByte()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("record: reading length: %w", err)
		}
		recLen |= int(b&0x7F) << (7 * i)
	}
	if recLen > maxRecordLen {
		return nil, fmt.Errorf("record: payload length %d exceeds %d byte limit (stream corrupt)", recLen, maxRecordLen)
	}

	if recLen > cap(r.buf) {
		r.buf = make([]byte, recLen)
	}
	data := r.buf[:recLen]
	if _, err := io.ReadFull(r.r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("record: reading %d payload bytes: %w", recLen, err)
	}
	return data, nil
}

// Next reads the next record from the stream.
// Returns (recID, payload, nil) on success, or (0, nil, io.EOF) at a clean
// end of stream.  A truncated stream (record ID found but length or payload
// missing) returns a non-EOF error rather than silently masking corruption
// as end-of-file.
func (r *Reader) Next() (recID int, data []byte, err error) {
	recID, err = r.ReadType()
	if err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("record: reading ID: %w", err)
	}
	data, err = r.FillBuffer()
	if err != nil {
		return 0, nil, fmt.Errorf("record: after ID 0x%04X: %w", recID, err)
	}
	return recID, data, nil
}

// NextSkipBlocks advances the stream until a record with the target ID is
// found and returns its payload.  Records named in bounds are vaulted over:
// a Begin with a matching End causes every record up to and including the
// End to be consumed; a Begin with End == 0 is consumed on its own.
// All other record types are discarded.
//
// A stream that ends before the target is found is reported as corruption,
// not as io.EOF.
func (r *Reader) NextSkipBlocks(target int, bounds []Block) ([]byte, error) {
	for {
		recID, err := r.ReadType()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("record: stream ended before ID 0x%04X: %w", target, err)
		}
		data, err := r.FillBuffer()
		if err != nil {
			return nil, fmt.Errorf("record: after ID 0x%04X: %w", recID, err)
		}
		if recID == target {
			return data, nil
		}
		end := 0
		for _, b := range bounds {
			if b.Begin == recID {
				end = b.End
				break
			}
		}
		if end == 0 {
			continue
		}
		for recID != end {
			recID, err = r.ReadType()
			if err != nil {
				if err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return nil, fmt.Errorf("record: stream ended inside block 0x%04X: %w", end, err)
			}
			if _, err = r.FillBuffer(); err != nil {
				return nil, fmt.Errorf("record: after ID 0x%04X: %w", recID, err)
			}
		}
	}
}
