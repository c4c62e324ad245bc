package rawbuffer

import (
	"errors"
	"testing"

	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/internal/enginehal/noop"
	"github.com/gogpu/krnl/scalar"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Options{Backend: noop.Backend{}})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestHostRoundTripToDeviceAndBack(t *testing.T) {
	e := newTestEngine(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	host, err := FromHostBytes(scalar.U32, data)
	if err != nil {
		t.Fatal(err)
	}

	devFuture, err := host.ToDevice(e)
	if err != nil {
		t.Fatal(err)
	}
	devBuf, err := devFuture.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if !devBuf.OnDevice() {
		t.Fatal("expected buffer to be device-resident")
	}

	hostFuture, err := devBuf.ToDevice(nil)
	if err != nil {
		t.Fatal(err)
	}
	back, err := hostFuture.Wait()
	if err != nil {
		t.Fatal(err)
	}
	got, err := back.AsHostSlice()
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("round trip mismatch at %d: got %v want %v", i, got, data)
		}
	}
}

func TestToDeviceSameEngineIsNoCopy(t *testing.T) {
	e := newTestEngine(t)
	buf, err := Alloc(e, scalar.F32, 4)
	if err != nil {
		t.Fatal(err)
	}
	future, err := buf.ToDevice(e)
	if err != nil {
		t.Fatal(err)
	}
	same, err := future.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if same != buf {
		t.Fatal("ToDevice onto the same engine must return the identical buffer")
	}
}

func TestAsHostSliceFailsOnDevice(t *testing.T) {
	e := newTestEngine(t)
	buf, err := Alloc(e, scalar.U8, 4)
	if err != nil {
		t.Fatal(err)
	}
	_, err = buf.AsHostSlice()
	var want *SliceOnDeviceError
	if err == nil {
		t.Fatal("expected SliceOnDeviceError")
	}
	if !errors.As(err, &want) {
		t.Fatalf("error = %v, want *SliceOnDeviceError", err)
	}
}

func TestSplitAtSharesAllocationAndCoversWholeRange(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buf, err := FromHostBytes(scalar.U32, data)
	if err != nil {
		t.Fatal(err)
	}
	left, right := buf.SplitAt(1)
	if left.Len()+right.Len() != buf.Len() {
		t.Fatalf("split lengths %d+%d != %d", left.Len(), right.Len(), buf.Len())
	}
	leftBytes, _ := left.AsHostSlice()
	rightBytes, _ := right.AsHostSlice()
	if len(leftBytes) != 4 || len(rightBytes) != 4 {
		t.Fatalf("split byte lengths = %d, %d, want 4, 4", len(leftBytes), len(rightBytes))
	}
}

func TestSplitAtPanicsPastEnd(t *testing.T) {
	buf, err := FromHostBytes(scalar.U32, make([]byte, 8))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected SplitAt to panic when mid exceeds length")
		}
	}()
	buf.SplitAt(3)
}
