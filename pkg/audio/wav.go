package audio

import (
	"errors"
	"fmt"
	"os"

	audiolib "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ReadFile decodes a WAV file into normalized mono float32 samples and
// reports the file's sample rate. Multi-channel input is downmixed by
// averaging.
func ReadFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("audio: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decode %s: %w", path, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 {
		return nil, 0, fmt.Errorf("audio: %s has no sample rate", path)
	}

	depth := buf.SourceBitDepth
	if depth == 0 {
		depth = int(dec.BitDepth)
	}
	samples := SamplesFromInts(buf.Data, depth)
	if buf.Format.NumChannels > 1 {
		samples = DownmixMono(samples, buf.Format.NumChannels)
	}
	return samples, buf.Format.SampleRate, nil
}

// WriteFile writes mono float32 samples as a 16-bit PCM WAV file. An empty
// sample slice produces a valid file with an empty data chunk.
func WriteFile(path string, samples []float32, sampleRate int) (err error) {
	w, err := NewWriter(path, sampleRate)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return w.WriteBlock(samples)
}

// Writer appends mono float32 blocks to a WAV file as 16-bit PCM. It keeps
// the encoder open across blocks so a capture callback can stream into it;
// Close finalizes the RIFF header. Not safe for concurrent use.
type Writer struct {
	path string
	f    *os.File
	enc  *wav.Encoder
}

// NewWriter creates the file at path, truncating any existing content, and
// prepares a 16-bit mono encoder at the given sample rate.
func NewWriter(path string, sampleRate int) (*Writer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: create %s: %w", path, err)
	}
	return &Writer{
		path: path,
		f:    f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 1, 1),
	}, nil
}

// Path returns the destination file path.
func (w *Writer) Path() string { return w.path }

// WriteBlock appends a block of samples. Empty blocks are a no-op.
func (w *Writer) WriteBlock(samples []float32) error {
	if len(samples) == 0 {
		return nil
	}
	buf := &audiolib.IntBuffer{
		Format:         &audiolib.Format{NumChannels: 1, SampleRate: w.enc.SampleRate},
		Data:           IntsFromSamples(samples),
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write %s: %w", w.path, err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file. It is safe to call
// after a failed write; the file handle is released in every case.
func (w *Writer) Close() error {
	encErr := w.enc.Close()
	fileErr := w.f.Close()
	if encErr != nil {
		encErr = fmt.Errorf("audio: finalize %s: %w", w.path, encErr)
	}
	if fileErr != nil {
		fileErr = fmt.Errorf("audio: close %s: %w", w.path, fileErr)
	}
	return errors.Join(encErr, fileErr)
}

// DurationMs returns the duration in milliseconds of a WAV file, read from
// its header without decoding the payload.
func DurationMs(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audio: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("audio: duration of %s: %w", path, err)
	}
	return int(d.Milliseconds()), nil
}
