package idgen

import (
	"testing"
	"time"

	"github.com/iho/tradebook/internal/domain"
)

func TestULIDGeneratorProducesValidIDs(t *testing.T) {
	g := NewULIDGenerator()

	id := g.Generate()
	if err := domain.ValidateID(id); err != nil {
		t.Fatalf("generated id %q is invalid: %v", id, err)
	}
}

func TestULIDGeneratorIsMonotonicWithinMillisecond(t *testing.T) {
	g := NewULIDGenerator()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	prev := g.Generate()
	for i := 0; i < 100; i++ {
		next := g.Generate()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}
