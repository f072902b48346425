package market

import (
	"reflect"
	"testing"
)

func TestChunk(t *testing.T) {
	in := []string{"A", "B", "C", "D", "E"}
	cases := []struct {
		size int
		want [][]string
	}{
		{0, [][]string{{"A", "B", "C", "D", "E"}}},
		{5, [][]string{{"A", "B", "C", "D", "E"}}},
		{2, [][]string{{"A", "B"}, {"C", "D"}, {"E"}}},
		{1, [][]string{{"A"}, {"B"}, {"C"}, {"D"}, {"E"}}},
	}
	for _, c := range cases {
		if got := chunk(in, c.size); !reflect.DeepEqual(got, c.want) {
			t.Fatalf("chunk(size=%d) = %v, want %v", c.size, got, c.want)
		}
	}
}
