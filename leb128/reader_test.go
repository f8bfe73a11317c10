package leb128

import "testing"

func TestU32(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint32
	}{
		{"zero", []byte{0x00}, 0},
		{"one byte", []byte{0x7f}, 127},
		{"three bytes", []byte{0xe5, 0x8e, 0x26}, 624485},
		{"max u32", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.in)
			got, err := r.U32()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expect %d, got %d", tt.want, got)
			}
			if !r.AtEnd() {
				t.Errorf("expect reader to be fully consumed")
			}
		})
	}
}

func TestU32Overlong(t *testing.T) {
	// 6 continuation bytes exceeds the 5-byte max for 32-bit.
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x0f})
	if _, err := r.U32(); err != ErrOverlong {
		t.Errorf("expect ErrOverlong, got %v", err)
	}
}

func TestU32OutOfRange(t *testing.T) {
	// Final byte has high bits set beyond the 32-bit width.
	r := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x1f})
	if _, err := r.U32(); err != ErrOutOfRange {
		t.Errorf("expect ErrOutOfRange, got %v", err)
	}
}

func TestI32SignExtend(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want int32
	}{
		{"-1", []byte{0x7f}, -1},
		{"-128", []byte{0x80, 0x7f}, -128},
		{"min i32", []byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648},
		{"64", []byte{0xc0, 0x00}, 64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.in)
			got, err := r.I32()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expect %d, got %d", tt.want, got)
			}
		})
	}
}

func TestTruncated(t *testing.T) {
	r := NewReader([]byte{0xff})
	if _, err := r.U32(); err == nil {
		t.Errorf("expect truncation error")
	}
}

func TestName(t *testing.T) {
	r := NewReader([]byte{0x03, 'a', 'b', 'c'})
	got, err := r.Name()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "abc" {
		t.Errorf("expect abc, got %s", got)
	}
}

func TestNameInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.Name(); err != ErrInvalidUTF8 {
		t.Errorf("expect ErrInvalidUTF8, got %v", err)
	}
}

func TestReadVec(t *testing.T) {
	r := NewReader([]byte{0x03, 0x01, 0x02, 0x03})
	got, err := ReadVec(r, func(r *Reader) (byte, error) { return r.Byte() })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expect len %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expect %d, got %d", i, want[i], got[i])
		}
	}
}

func TestScopedAtEnd(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04})
	scoped, err := r.Scoped(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scoped.AtEnd() {
		t.Fatalf("fresh scoped reader should not be at end")
	}
	if _, err := scoped.Bytes(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !scoped.AtEnd() {
		t.Errorf("expect scoped reader to be fully consumed")
	}
	if r.Pos() != 2 {
		t.Errorf("expect parent reader to have advanced by 2, got %d", r.Pos())
	}
}
