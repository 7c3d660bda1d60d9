package state

import (
	"errors"
	"sort"
	"testing"

	"github.com/five82/zheye/internal/api"
)

func TestToMapping_RoundTripIsPermutation(t *testing.T) {
	list := []api.Column{
		{ID: "c3", Title: "three"},
		{ID: "c1", Title: "one"},
		{ID: "c2", Title: "two"},
	}
	m, err := ToMapping(list)
	if err != nil {
		t.Fatalf("ToMapping returned error: %v", err)
	}
	if len(m) != 3 || m["c1"].Title != "one" {
		t.Fatalf("mapping = %#v, want 3 entries keyed by id", m)
	}

	back := ToOrderedList(m)
	if len(back) != len(list) {
		t.Fatalf("ToOrderedList returned %d items, want %d", len(back), len(list))
	}
	ids := make([]string, 0, len(back))
	for _, c := range back {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	want := []string{"c1", "c2", "c3"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestToMapping_RejectsMissingIdentifier(t *testing.T) {
	_, err := ToMapping([]api.Post{{ID: "p1"}, {Title: "anonymous"}})
	if !errors.Is(err, ErrMalformedEntity) {
		t.Fatalf("ToMapping error = %v, want ErrMalformedEntity", err)
	}
}

func TestToMapping_EmptyInputs(t *testing.T) {
	m, err := ToMapping[api.Post](nil)
	if err != nil || len(m) != 0 {
		t.Fatalf("ToMapping(nil) = %v, %v; want empty map", m, err)
	}
	if got := ToOrderedList[api.Post](nil); len(got) != 0 {
		t.Fatalf("ToOrderedList(nil) = %v, want empty", got)
	}
}
