package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := NewComponentLogger("test")
	assert.Equal(t, l, OrNop(l))
}

func TestNopDoesNotPanic(t *testing.T) {
	l := Nop()
	l.Debug("d %d", 1)
	l.Info("i")
	l.Warn("w")
	l.Error("e")
	l.Critical("c")
}

func TestSecretInfo(t *testing.T) {
	assert.Equal(t, "not configured", SecretInfo(""))
	assert.Equal(t, "configured, length=5", SecretInfo("abcde"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "CRITICAL", LevelCritical.String())
}
