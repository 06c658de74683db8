package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recorder struct {
	errs   []error
	panics []any
}

func (r *recorder) CaptureException(err error, _ map[string]string) { r.errs = append(r.errs, err) }
func (r *recorder) CapturePanic(v any)                              { r.panics = append(r.panics, v) }
func (r *recorder) Flush(time.Duration)                             {}

func TestRecoverReportsAndRepanics(t *testing.T) {
	rec := &recorder{}
	Init(rec)
	defer Init(NopMonitor{})

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Fatalf("expected re-panic with boom got %v", r)
			}
		}()
		func() {
			defer Recover()
			panic("boom")
		}()
	}()
	if len(rec.panics) != 1 {
		t.Fatalf("expected one panic reported got %d", len(rec.panics))
	}
}

func TestCaptureException(t *testing.T) {
	rec := &recorder{}
	Init(rec)
	defer Init(NopMonitor{})
	CaptureException(errors.New("x"), nil)
	if len(rec.errs) != 1 {
		t.Fatal("expected captured error")
	}
}

func TestPanicError(t *testing.T) {
	base := errors.New("e")
	if PanicError(base) != base {
		t.Fatal("expected same error")
	}
	if PanicError(3).Error() != "panic: 3" {
		t.Fatal("unexpected message")
	}
}
