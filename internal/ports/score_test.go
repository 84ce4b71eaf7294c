package ports

import (
	"reflect"
	"testing"
)

func TestOutcomes(t *testing.T) {
	got := Outcomes("b", []string{"a", "b", "c"})
	want := []Outcome{{UserID: "a"}, {UserID: "b", Won: true}, {UserID: "c"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Outcomes() = %+v, want %+v", got, want)
	}
}
