package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(KindIO, "read", "device read", nil))
	})

	t.Run("tags plain errors", func(t *testing.T) {
		cause := stderrors.New("boom")
		err := Wrap(KindCodec, "opus.new", "create encoder", cause)
		assert.True(t, IsKind(err, KindCodec))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "[codec:opus.new] create encoder: boom", err.Error())
	})

	t.Run("keeps the original kind", func(t *testing.T) {
		inner := New(KindNetwork, "hello", "handshake timeout")
		err := Wrap(KindIO, "open", "open channel", inner)
		assert.True(t, IsKind(err, KindNetwork))
		assert.False(t, IsKind(err, KindIO))
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindConfig, KindOf(fmt.Errorf("outer: %w", New(KindConfig, "load", "bad"))))
}
