package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_AlwaysSameInstant(t *testing.T) {
	var clock Clock = FixedClock{Instant: at(3)}

	assert.Equal(t, at(3), clock.Now())
	assert.Equal(t, clock.Now(), clock.Now())
}
