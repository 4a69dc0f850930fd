package postgres

import (
	"reflect"
	"testing"
)

func TestJoinSplitListRoundTrip(t *testing.T) {
	in := []string{"a", "b", "c"}
	out := splitList(joinList(in))
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("got %v, want %v", out, in)
	}
}

func TestSplitListEmpty(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
