package can

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigParams(t *testing.T) {
	cfg := NewConfig(
		WithBitrate(125000),
		WithParam("io_port", "0x378"),
		WithParams(map[string]any{"interrupt": 7, "receive_own": "true", "timeout": "150ms", "poll": 0.5}),
	)
	assert.Equal(t, 125000, cfg.Bitrate)
	assert.NotNil(t, cfg.Logger)

	port, err := cfg.Int("io_port", 0)
	assert.Nil(t, err)
	assert.Equal(t, 0x378, port)

	irq, err := cfg.Int("interrupt", 0)
	assert.Nil(t, err)
	assert.Equal(t, 7, irq)

	own, err := cfg.Bool("receive_own", false)
	assert.Nil(t, err)
	assert.True(t, own)

	timeout, err := cfg.Duration("timeout", 0)
	assert.Nil(t, err)
	assert.Equal(t, 150*time.Millisecond, timeout)

	poll, err := cfg.Duration("poll", 0)
	assert.Nil(t, err)
	assert.Equal(t, 500*time.Millisecond, poll)

	def, err := cfg.Int("absent", 42)
	assert.Nil(t, err)
	assert.Equal(t, 42, def)
	assert.False(t, cfg.Has("absent"))
}

func TestConfigInvalidParam(t *testing.T) {
	cfg := NewConfig(WithParam("io_port", "not a number"), WithParam("flag", "maybe"))
	_, err := cfg.Int("io_port", 0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = cfg.Bool("flag", false)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

type level uint8

type mode int16

func TestConfigIntNamedTypes(t *testing.T) {
	cfg := NewConfig(WithParam("level", level(9)), WithParam("mode", mode(-3)), WithParam("port", uintptr(0x278)))

	v, err := cfg.Int("level", 0)
	assert.Nil(t, err)
	assert.Equal(t, 9, v)

	v, err = cfg.Int("mode", 0)
	assert.Nil(t, err)
	assert.Equal(t, -3, v)

	v, err = cfg.Int("port", 0)
	assert.Nil(t, err)
	assert.Equal(t, 0x278, v)
}
