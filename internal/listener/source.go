package listener

import (
	"fmt"
	"io"

	"github.com/gordonklaus/portaudio"

	"earshot/pkg/audioconv"
)

const sampleRate = 16000

// Source produces fixed-size chunks of mono 16 kHz int16 audio.
type Source interface {
	ReadChunk() ([]int16, error)
	Close() error
}

type micSource struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenMicrophone opens the default audio input device in blocking mode.
// The returned source owns the device; closing it releases the device
// and shuts portaudio down.
func OpenMicrophone(chunkSize int) (Source, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize audio: %w", err)
	}

	buf := make([]int16, chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open audio input: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start audio input: %w", err)
	}

	return &micSource{stream: stream, buf: buf}, nil
}

func (m *micSource) ReadChunk() ([]int16, error) {
	if err := m.stream.Read(); err != nil {
		return nil, err
	}

	chunk := make([]int16, len(m.buf))
	copy(chunk, m.buf)

	return chunk, nil
}

func (m *micSource) Close() error {
	err := m.stream.Stop()
	if cerr := m.stream.Close(); err == nil {
		err = cerr
	}
	portaudio.Terminate()

	return err
}

type fileSource struct {
	samples   []int16
	chunkSize int
	pos       int
}

// OpenFile decodes an audio file and serves it in chunks, for running
// the detection loop without a microphone. The final short chunk is
// zero-padded; io.EOF follows the last chunk.
func OpenFile(path string, chunkSize int) (Source, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	pcm, err := audioconv.DecodeFile(path, audioconv.Options{})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &fileSource{
		samples:   audioconv.Float32ToInt16(pcm),
		chunkSize: chunkSize,
	}, nil
}

func (f *fileSource) ReadChunk() ([]int16, error) {
	if f.pos >= len(f.samples) {
		return nil, io.EOF
	}

	chunk := make([]int16, f.chunkSize)
	n := copy(chunk, f.samples[f.pos:])
	f.pos += n

	return chunk, nil
}

func (f *fileSource) Close() error {
	return nil
}
