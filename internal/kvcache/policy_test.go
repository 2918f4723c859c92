package kvcache

import (
	"fmt"
	"reflect"
	"testing"
)

type fakeKV struct {
	ops      []string
	canShift bool
}

func (f *fakeKV) KvClear() {
	f.ops = append(f.ops, "clear")
}

func (f *fakeKV) KvSeqRm(seq, from, to int) {
	f.ops = append(f.ops, fmt.Sprintf("rm(%d,%d,%d)", seq, from, to))
}

func (f *fakeKV) KvSeqAdd(seq, from, to, delta int) {
	f.ops = append(f.ops, fmt.Sprintf("add(%d,%d,%d,%d)", seq, from, to, delta))
}

func (f *fakeKV) KvCanShift() bool { return f.canShift }

func TestCommonPrefix(t *testing.T) {
	cases := []struct {
		name string
		a, b []int
		want int
	}{
		{name: "both-empty", a: nil, b: nil, want: 0},
		{name: "no-overlap", a: []int{1, 2}, b: []int{3, 4}, want: 0},
		{name: "partial", a: []int{1, 2, 3}, b: []int{1, 2, 9}, want: 2},
		{name: "a-prefix-of-b", a: []int{1, 2}, b: []int{1, 2, 3}, want: 2},
		{name: "b-prefix-of-a", a: []int{1, 2, 3}, b: []int{1, 2}, want: 2},
		{name: "identical", a: []int{5, 6, 7}, b: []int{5, 6, 7}, want: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CommonPrefix(tc.a, tc.b); got != tc.want {
				t.Fatalf("CommonPrefix(%v, %v) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestRetainPrefix(t *testing.T) {
	t.Run("no overlap clears", func(t *testing.T) {
		kv := &fakeKV{}
		common := RetainPrefix(kv, []int{1, 2}, []int{3, 4})
		if common != 0 {
			t.Fatalf("common = %d, want 0", common)
		}
		if !reflect.DeepEqual(kv.ops, []string{"clear"}) {
			t.Fatalf("ops = %v, want [clear]", kv.ops)
		}
	})

	t.Run("partial overlap truncates tail", func(t *testing.T) {
		kv := &fakeKV{}
		common := RetainPrefix(kv, []int{1, 2, 3, 4}, []int{1, 2, 9})
		if common != 2 {
			t.Fatalf("common = %d, want 2", common)
		}
		if !reflect.DeepEqual(kv.ops, []string{"rm(0,2,-1)"}) {
			t.Fatalf("ops = %v, want [rm(0,2,-1)]", kv.ops)
		}
	})

	t.Run("full prefix leaves cache alone", func(t *testing.T) {
		kv := &fakeKV{}
		common := RetainPrefix(kv, []int{1, 2}, []int{1, 2, 3})
		if common != 2 {
			t.Fatalf("common = %d, want 2", common)
		}
		if len(kv.ops) != 0 {
			t.Fatalf("ops = %v, want none", kv.ops)
		}
	})
}

func TestShift(t *testing.T) {
	t.Run("shift at window makes one slot", func(t *testing.T) {
		kv := &fakeKV{canShift: true}
		got := Shift(kv, 64, 64)
		if got != 63 {
			t.Fatalf("curPos = %d, want 63", got)
		}
		want := []string{"rm(0,0,1)", "add(0,1,64,-1)"}
		if !reflect.DeepEqual(kv.ops, want) {
			t.Fatalf("ops = %v, want %v", kv.ops, want)
		}
	})

	t.Run("beyond window discards more", func(t *testing.T) {
		kv := &fakeKV{canShift: true}
		got := Shift(kv, 70, 64)
		if got != 63 {
			t.Fatalf("curPos = %d, want 63", got)
		}
		want := []string{"rm(0,0,7)", "add(0,7,70,-7)"}
		if !reflect.DeepEqual(kv.ops, want) {
			t.Fatalf("ops = %v, want %v", kv.ops, want)
		}
	})

	t.Run("below window is a no-op", func(t *testing.T) {
		kv := &fakeKV{canShift: true}
		if got := Shift(kv, 10, 64); got != 10 {
			t.Fatalf("curPos = %d, want 10", got)
		}
		if len(kv.ops) != 0 {
			t.Fatalf("ops = %v, want none", kv.ops)
		}
	})

	t.Run("disabled window is a no-op", func(t *testing.T) {
		kv := &fakeKV{canShift: true}
		if got := Shift(kv, 10, 0); got != 10 {
			t.Fatalf("curPos = %d, want 10", got)
		}
	})

	t.Run("cannot shift leaves curPos untouched", func(t *testing.T) {
		kv := &fakeKV{canShift: false}
		if got := Shift(kv, 64, 64); got != 64 {
			t.Fatalf("curPos = %d, want 64", got)
		}
		if len(kv.ops) != 0 {
			t.Fatalf("ops = %v, want none", kv.ops)
		}
	})
}

func TestTrimHistory(t *testing.T) {
	cases := []struct {
		name   string
		tokens []int
		window int
		want   []int
	}{
		{name: "disabled", tokens: []int{1, 2, 3}, window: 0, want: []int{1, 2, 3}},
		{name: "fits", tokens: []int{1, 2, 3}, window: 4, want: []int{1, 2, 3}},
		{name: "exact", tokens: []int{1, 2, 3}, window: 3, want: []int{1, 2, 3}},
		{name: "trims-front", tokens: []int{1, 2, 3, 4, 5}, window: 2, want: []int{4, 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TrimHistory(tc.tokens, tc.window)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("TrimHistory(%v, %d) = %v, want %v", tc.tokens, tc.window, got, tc.want)
			}
		})
	}
}
