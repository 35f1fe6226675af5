//go:build !portaudio

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSource_PortAudioUnavailable(t *testing.T) {
	_, err := NewSource(SourceConfig{Backend: BackendPortAudio})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
