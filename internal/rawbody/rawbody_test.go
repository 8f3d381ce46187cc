package rawbody_test

import (
	"strings"
	"testing"
	"testing/iotest"

	"github.com/advdv/bmicro/internal/rawbody"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Run("within limit", func(t *testing.T) {
		b, err := rawbody.Read(strings.NewReader("hello"), 5, 5)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
	})

	t.Run("unknown length", func(t *testing.T) {
		b, err := rawbody.Read(strings.NewReader("hello"), 10, -1)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(b))
	})

	t.Run("declared too large", func(t *testing.T) {
		_, err := rawbody.Read(iotest.ErrReader(assert.AnError), 5, 6)
		require.Error(t, err)
		assert.True(t, rawbody.IsTooLarge(err), "must fail before reading")
	})

	t.Run("read too large", func(t *testing.T) {
		_, err := rawbody.Read(strings.NewReader("hello!"), 5, -1)

		var tle *rawbody.TooLargeError
		require.ErrorAs(t, err, &tle)
		assert.Equal(t, int64(5), tle.Limit)
		assert.Equal(t, int64(6), tle.Length)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := rawbody.Read(strings.NewReader("hi"), 5, 4)
		require.ErrorIs(t, err, rawbody.ErrLengthMismatch)
		assert.False(t, rawbody.IsTooLarge(err))
	})

	t.Run("read failure", func(t *testing.T) {
		_, err := rawbody.Read(iotest.ErrReader(assert.AnError), 5, -1)
		require.ErrorIs(t, err, assert.AnError)
	})
}
