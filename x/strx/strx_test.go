package strx

import "testing"

func TestCoalesce(t *testing.T) {
	if Coalesce("", "d") != "d" || Coalesce("s", "d") != "s" {
		t.Fatal("Coalesce")
	}
}
