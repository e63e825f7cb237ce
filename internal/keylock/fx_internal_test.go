package keylock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLeaseTTL(t *testing.T) {
	assert.Equal(t, 30*time.Second, leaseTTL(30*time.Second, 10*time.Second))
	assert.Equal(t, 40*time.Second, leaseTTL(30*time.Second, 20*time.Second))
	assert.Equal(t, defaultLockTTL, leaseTTL(0, 0))
	assert.Equal(t, time.Minute, leaseTTL(0, 30*time.Second))
}
