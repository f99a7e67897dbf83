package process

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsProcessAlive(t *testing.T) {
	assert.True(t, IsProcessAlive(os.Getpid()))
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-4))
}

func TestIsSelf(t *testing.T) {
	assert.True(t, IsSelf(os.Getpid()))
	assert.False(t, IsSelf(os.Getpid()+1))
}
