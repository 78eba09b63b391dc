// This file provides audio file loading for offline analysis.
package analysis

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// LoadAudioMono loads an audio file and returns mono float32 samples plus the
// sample rate. MP3 is the supported format; stereo content is mixed down.
func LoadAudioMono(path string) ([]float32, int, error) {
	if strings.ToLower(filepath.Ext(path)) != ".mp3" {
		return nil, 0, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("create MP3 decoder: %w", err)
	}

	// go-mp3 always emits 16-bit little-endian stereo.
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("decode MP3: %w", err)
	}

	pairs := len(pcm) / 4
	samples := make([]float32, pairs)
	for i := 0; i < pairs; i++ {
		offset := i * 4
		left := int16(binary.LittleEndian.Uint16(pcm[offset:]))
		right := int16(binary.LittleEndian.Uint16(pcm[offset+2:]))
		samples[i] = (float32(left) + float32(right)) / 2 / 32768.0
	}

	return samples, decoder.SampleRate(), nil
}
