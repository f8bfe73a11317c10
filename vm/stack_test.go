package vm

import "testing"

func TestStackPushPop(t *testing.T) {
	s := NewStack(8, 4, 16)
	if err := s.Push(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(2); err != nil {
		t.Fatal(err)
	}
	v, err := s.Pop()
	if err != nil || v != 2 {
		t.Fatalf("got %d, %v", v, err)
	}
	if s.Depth() != 1 {
		t.Fatalf("expect depth 1, got %d", s.Depth())
	}
}

func TestStackOverflow(t *testing.T) {
	s := NewStack(1, 4, 16)
	if err := s.Push(1); err != nil {
		t.Fatal(err)
	}
	if err := s.Push(2); err != ErrStackOverflow {
		t.Fatalf("expect overflow, got %v", err)
	}
}

func TestStackUnderflow(t *testing.T) {
	s := NewStack(4, 4, 16)
	if _, err := s.Pop(); err != ErrStackUnderflow {
		t.Fatalf("expect underflow, got %v", err)
	}
}

func TestStackTruncatePreservesTop(t *testing.T) {
	s := NewStack(8, 4, 16)
	for _, v := range []uint64{10, 20, 30, 40} {
		if err := s.Push(v); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Truncate(1, 2); err != nil {
		t.Fatal(err)
	}
	if s.Depth() != 3 {
		t.Fatalf("expect depth 3, got %d", s.Depth())
	}
	got, err := s.TopN(2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 30 || got[1] != 40 {
		t.Fatalf("expect [30 40], got %v", got)
	}
}

func TestFrameLabelAt(t *testing.T) {
	f := &Frame{}
	f.Labels = append(f.Labels, Label{SP: 0, Arity: 0})
	f.Labels = append(f.Labels, Label{SP: 5, Arity: 1})
	f.Labels = append(f.Labels, Label{SP: 9, Arity: 2})

	lbl, idx, ok := f.LabelAt(0)
	if !ok || idx != 2 || lbl.SP != 9 {
		t.Fatalf("innermost label wrong: %+v idx=%d ok=%v", lbl, idx, ok)
	}
	lbl, idx, ok = f.LabelAt(2)
	if !ok || idx != 0 || lbl.SP != 0 {
		t.Fatalf("outermost label wrong: %+v idx=%d ok=%v", lbl, idx, ok)
	}
	if _, _, ok = f.LabelAt(3); ok {
		t.Fatal("expect LabelAt(3) to miss")
	}
}

func TestPushLabelOverflow(t *testing.T) {
	s := NewStack(16, 4, 2)
	f := &Frame{}
	for i := 0; i < 2; i++ {
		if err := s.PushLabel(f, Label{}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PushLabel(f, Label{}); err != ErrLabelOverflow {
		t.Fatalf("expect label overflow, got %v", err)
	}
}

func TestStackFrames(t *testing.T) {
	s := NewStack(16, 2, 16)
	fn := &FuncInstance{}
	for i := 0; i < 2; i++ {
		if _, err := s.EnterFrame(fn); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.EnterFrame(fn); err != ErrFrameOverflow {
		t.Fatalf("expect frame overflow, got %v", err)
	}
	if s.FrameDepth() != 2 {
		t.Fatalf("expect depth 2, got %d", s.FrameDepth())
	}
}
