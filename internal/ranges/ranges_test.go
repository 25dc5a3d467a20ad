package ranges

import (
	"reflect"
	"testing"
)

func TestSplitRangeBasic(t *testing.T) {
	r, _ := NewRange("node", 1, 520)

	got, err := r.SplitRange("node[1-3,20]")
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	want := []string{"node1", "node2", "node3", "node20"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitRangeBare(t *testing.T) {
	r, _ := NewRange("node", 1, 520)

	got, err := r.SplitRange("node7")
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"node7"}) {
		t.Fatalf("got %v", got)
	}
}

func TestSplitRangePadded(t *testing.T) {
	r, _ := NewRange("node", 1, 520)

	got, err := r.SplitRange("node[008-011]")
	if err != nil {
		t.Fatalf("SplitRange: %v", err)
	}
	want := []string{"node008", "node009", "node010", "node011"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUnsplitRangeContiguousAndIsolated(t *testing.T) {
	r, _ := NewRange("node", 1, 520)

	got, err := r.UnsplitRange([]string{"node1", "node2", "node3", "node4", "node5", "node20"})
	if err != nil {
		t.Fatalf("UnsplitRange: %v", err)
	}
	if got != "node[1-5,20]" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitListMixed(t *testing.T) {
	got, err := SplitList("foo,bar[0-1],kn[1,2,3]")
	if err != nil {
		t.Fatalf("SplitList: %v", err)
	}
	if len(got) != 6 {
		t.Fatalf("got %v, want 6 elements", got)
	}
}

func TestUnsplitListGroupsByPrefix(t *testing.T) {
	hosts := []string{"node1", "node2", "node3", "n1", "n2"}
	got := UnsplitList(hosts)
	// "node" group has 3 members, "n" group has 2: node sorts first.
	if got != "node[1-3],n[1-2]" {
		t.Fatalf("got %q", got)
	}
}
