package stringtable

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/TsubasaBE/go-xlsbin/biff12"
)

func writeID(buf *bytes.Buffer, id int) {
	if id < 0x80 {
		buf.WriteByte(byte(id))
		return
	}
	buf.WriteByte(byte(id&0x7F) | 0x80)
	buf.WriteByte(byte(id >> 7))
}

func writeRec(buf *bytes.Buffer, id int, payload []byte) {
	writeID(buf, id)
	n := len(payload)
	for {
		b := n & 0x7F
		n >>= 7
		if n > 0 {
			buf.WriteByte(byte(b) | 0x80)
		} else {
			buf.WriteByte(byte(b))
			break
		}
	}
	buf.Write(payload)
}

// siRec builds a BrtSSTItem payload: flag byte plus wide string.
func siRec(s string) []byte {
	var b bytes.Buffer
	b.WriteByte(0)
	runes := []rune(s)
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(runes)))
	for _, r := range runes {
		_ = binary.Write(&b, binary.LittleEndian, uint16(r))
	}
	return b.Bytes()
}

// sstHeader builds a BrtBeginSst payload: total count then unique count.
func sstHeader(total, unique uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, total)
	binary.LittleEndian.PutUint32(b[4:], unique)
	return b
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	writeRec(&buf, biff12.Sst, sstHeader(5, 3))
	writeRec(&buf, biff12.Si, siRec("alpha"))
	// Future-record blocks between items must be vaulted over.
	writeRec(&buf, biff12.FRTBegin, nil)
	writeRec(&buf, 0x0078, []byte{1, 2, 3})
	writeRec(&buf, biff12.FRTEnd, nil)
	writeRec(&buf, biff12.Si, siRec("béta"))
	writeRec(&buf, biff12.Si, siRec(""))
	writeRec(&buf, biff12.SstEnd, nil)

	st, err := New(&buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if st.Len() != 3 {
		t.Fatalf("Len = %d, want 3", st.Len())
	}
	for i, want := range []string{"alpha", "béta", ""} {
		if got := st.Get(i); got != want {
			t.Errorf("Get(%d) = %q, want %q", i, got, want)
		}
	}
}

func TestNewMalformedItem(t *testing.T) {
	var buf bytes.Buffer
	writeRec(&buf, biff12.Sst, sstHeader(2, 2))
	// Declared 10 characters but only 2 bytes of data: treated as empty.
	bad := append([]byte{0}, 10, 0, 0, 0, 'x', 0)
	writeRec(&buf, biff12.Si, bad)
	writeRec(&buf, biff12.Si, siRec("ok"))
	writeRec(&buf, biff12.SstEnd, nil)

	st, err := New(&buf)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := st.Get(0); got != "" {
		t.Errorf("Get(0) = %q, want empty string", got)
	}
	if got := st.Get(1); got != "ok" {
		t.Errorf("Get(1) = %q, want %q", got, "ok")
	}
}

func TestNewTruncatedTable(t *testing.T) {
	var buf bytes.Buffer
	writeRec(&buf, biff12.Sst, sstHeader(3, 3))
	writeRec(&buf, biff12.Si, siRec("only one"))

	if _, err := New(&buf); err == nil {
		t.Error("table missing two items accepted, want error")
	}
}

func TestNewImplausibleCount(t *testing.T) {
	var buf bytes.Buffer
	writeRec(&buf, biff12.Sst, sstHeader(0, 1<<30))

	if _, err := NewFromBytes(buf.Bytes()); err == nil {
		t.Error("huge unique count accepted, want error")
	}
}
