package console_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kernelx/internal/console"
	"kernelx/internal/defs"
	"kernelx/internal/file"
)

func TestIoctlIsUnsupported(t *testing.T) {
	h := console.New()
	_, errno := h.Ioctl(0, 0)
	assert.Equal(t, -defs.ENOTTY, errno)
}

func TestPollMasksToRequestedBits(t *testing.T) {
	h := console.New()
	assert.Equal(t, file.PollIn, h.Poll(file.PollIn|file.PollErr))
	assert.Equal(t, file.PollIn|file.PollOut, h.Poll(file.PollIn|file.PollOut|file.PollHup))
}

func TestRawOnNonTTYFailsCleanly(t *testing.T) {
	// go test's stdin is never a terminal, so Raw must report failure
	// rather than panicking or blocking, handing back no saved state.
	saved, ok := console.Raw()
	assert.False(t, ok)
	assert.Nil(t, saved)
}
