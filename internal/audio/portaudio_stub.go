//go:build !portaudio

package audio

import "fmt"

func newPortAudioSource(SourceConfig) (Source, error) {
	return nil, fmt.Errorf("%w: %s (rebuild with -tags portaudio)", ErrBackendUnavailable, BackendPortAudio)
}
