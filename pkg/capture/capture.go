// Package capture wires a PortAudio input stream to the analysis sample
// ring. The audio callback runs in a real-time context: it copies the block
// into the ring, counts the block as dropped when the ring is full, stores a
// per-block RMS reading, and does nothing else — no locks, no allocation, no
// logging.
package capture

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"

	"github.com/nzoschke/guitarlab/pkg/ring"
)

// Capture owns a mono input stream on the default device and forwards every
// captured block to the ring.
type Capture struct {
	ring   *ring.Ring
	stream *portaudio.Stream

	peakBits atomic.Uint64 // math.Float64bits of the latest block RMS
	dropped  atomic.Uint64
}

// Open initializes PortAudio and opens (but does not start) a mono input
// stream on the default device, delivering blocks of blockSize samples at
// sampleRate to r.
func Open(r *ring.Ring, sampleRate float64, blockSize int) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	c := &Capture{ring: r}
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, blockSize, c.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	c.stream = stream

	log.Debug("input stream opened", "sample_rate", sampleRate, "block_size", blockSize)
	return c, nil
}

// callback is invoked by PortAudio for each captured block. A full ring means
// the block is dropped; that is backpressure, not an error.
func (c *Capture) callback(in []float32) {
	if !c.ring.Write(in) {
		c.dropped.Add(1)
	}

	var sum float64
	for _, s := range in {
		sum += float64(s) * float64(s)
	}
	rms := 0.0
	if len(in) > 0 {
		rms = math.Sqrt(sum / float64(len(in)))
	}
	c.peakBits.Store(math.Float64bits(rms))
}

// Start begins capturing.
func (c *Capture) Start() error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	return nil
}

// Stop stops capturing; the stream can be started again.
func (c *Capture) Stop() error {
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("stop input stream: %w", err)
	}
	return nil
}

// Close releases the stream and shuts PortAudio down.
func (c *Capture) Close() error {
	err := c.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("close input stream: %w", err)
	}
	return nil
}

// Peak returns the RMS of the most recently captured block.
func (c *Capture) Peak() float64 {
	return math.Float64frombits(c.peakBits.Load())
}

// Dropped returns how many blocks have been dropped due to ring backpressure.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}
