package localstore

import (
	"context"
	"testing"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.GetItem(ctx, "a"); ok {
		t.Fatal("expected missing key")
	}
	m.SetItem(ctx, "a", "1")
	if v, ok, _ := m.GetItem(ctx, "a"); !ok || v != "1" {
		t.Fatalf("got %q ok=%v", v, ok)
	}
	m.RemoveItem(ctx, "a")
	if _, ok, _ := m.GetItem(ctx, "a"); ok {
		t.Fatal("expected key removed")
	}
}

func TestBoolFlags(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	cases := []struct {
		name string
		raw  *string
		def  bool
		want bool
	}{
		{"absent uses default", nil, true, true},
		{"stored false", strPtr("false"), true, false},
		{"garbage uses default", strPtr("maybe"), true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m.RemoveItem(ctx, "flag")
			if tc.raw != nil {
				m.SetItem(ctx, "flag", *tc.raw)
			}
			got, err := GetBool(ctx, m, "flag", tc.def)
			if err != nil || got != tc.want {
				t.Fatalf("got %v err=%v, want %v", got, err, tc.want)
			}
		})
	}

	if err := SetBool(ctx, m, "flag", true); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := m.GetItem(ctx, "flag"); v != "true" {
		t.Fatalf("expected \"true\", got %q", v)
	}
}

func strPtr(s string) *string { return &s }
