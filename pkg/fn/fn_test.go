package fn

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestThenShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	first := func(_ context.Context, n int) Result[int] { return Err[int](boom) }
	var secondRan bool
	second := func(_ context.Context, n int) Result[string] {
		secondRan = true
		return Ok(strconv.Itoa(n))
	}

	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() {
		t.Fatal("expected error result")
	}
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if secondRan {
		t.Error("second stage ran after first failed")
	}
}

func TestThenPassesValue(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	str := MapStage(strconv.Itoa)
	v, err := Then(double, str)(context.Background(), 21).Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "42" {
		t.Errorf("value = %q, want 42", v)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(context.Context) Result[int] {
		attempts++
		if attempts < 3 {
			return Errf[int]("attempt %d", attempts)
		}
		return Ok(attempts)
	})
	if v, err := r.Unwrap(); err != nil || v != 3 {
		t.Errorf("got (%d, %v), want (3, nil)", v, err)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
	r := Retry(ctx, opts, func(context.Context) Result[int] {
		return Errf[int]("always fails")
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCollect(t *testing.T) {
	ok := Collect([]Result[int]{Ok(1), Ok(2)})
	if v, _ := ok.Unwrap(); len(v) != 2 {
		t.Errorf("Collect ok = %v, want [1 2]", v)
	}
	bad := Collect([]Result[int]{Ok(1), Errf[int]("nope")})
	if bad.IsOk() {
		t.Error("Collect should surface the error")
	}
}

func TestParMapResultPreservesOrder(t *testing.T) {
	in := []int{5, 4, 3, 2, 1}
	out := ParMapResult(in, 2, func(n int) Result[int] { return Ok(n * 10) })
	for i, r := range out {
		if v, _ := r.Unwrap(); v != in[i]*10 {
			t.Errorf("out[%d] = %d, want %d", i, v, in[i]*10)
		}
	}
}

func TestResultAccessors(t *testing.T) {
	if v := Errf[int]("nope").UnwrapOr(7); v != 7 {
		t.Errorf("UnwrapOr = %d, want fallback", v)
	}
	doubled := MapResult(Ok(21), func(n int) int { return n * 2 })
	if v, err := doubled.Unwrap(); err != nil || v != 42 {
		t.Errorf("MapResult = (%d, %v)", v, err)
	}
	if MapResult(Errf[int]("nope"), func(n int) int { return n }).IsOk() {
		t.Error("MapResult should pass errors through")
	}
}

func TestMapAndFilter(t *testing.T) {
	got := Map([]int{1, 2, 3}, strconv.Itoa)
	if len(got) != 3 || got[2] != "3" {
		t.Errorf("Map = %v", got)
	}
	evens := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 0 })
	if len(evens) != 2 || evens[0] != 2 {
		t.Errorf("Filter = %v", evens)
	}
}

func TestGroupBy(t *testing.T) {
	groups := GroupBy([]string{"aa", "b", "cc", "d"}, func(s string) int { return len(s) })
	if len(groups[1]) != 2 || len(groups[2]) != 2 {
		t.Errorf("unexpected grouping: %v", groups)
	}
}
