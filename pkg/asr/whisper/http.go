package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hushcut/hushcut/pkg/asr"
	"github.com/hushcut/hushcut/pkg/audio"
)

const defaultHTTPTimeout = 60 * time.Second

// HTTP implements [asr.Engine] against a whisper-server /inference endpoint.
// Each call uploads the buffer as a WAV file in a multipart form; the server
// runs on whatever hardware it has, so this engine doubles as the CPU or
// remote fallback behind the native engine.
type HTTP struct {
	serverURL  string
	sampleRate int
	language   string
	client     *http.Client
	log        *slog.Logger
}

var _ asr.Engine = (*HTTP)(nil)

// HTTPOption configures an [HTTP] engine.
type HTTPOption func(*HTTP)

// WithHTTPLanguage sets the default language code sent when a call's Options
// leave it empty.
func WithHTTPLanguage(lang string) HTTPOption {
	return func(e *HTTP) { e.language = lang }
}

// WithHTTPSampleRate declares the sample rate of buffers passed to
// Transcribe. Defaults to 16000.
func WithHTTPSampleRate(rate int) HTTPOption {
	return func(e *HTTP) { e.sampleRate = rate }
}

// WithHTTPTimeout sets the per-request timeout. Defaults to 60 s.
func WithHTTPTimeout(d time.Duration) HTTPOption {
	return func(e *HTTP) { e.client.Timeout = d }
}

// WithHTTPLogger sets the logger; nil selects slog.Default.
func WithHTTPLogger(log *slog.Logger) HTTPOption {
	return func(e *HTTP) { e.log = log }
}

// NewHTTP creates an engine for the whisper-server at serverURL
// (e.g. "http://localhost:8080").
func NewHTTP(serverURL string, opts ...HTTPOption) (*HTTP, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL must not be empty")
	}
	e := &HTTP{
		serverURL:  serverURL,
		sampleRate: whisperRate,
		language:   defaultLanguage,
		client:     &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	return e, nil
}

// Close is a no-op; the engine holds no persistent connection state beyond
// the shared HTTP client.
func (e *HTTP) Close() error { return nil }

// Transcribe uploads the buffer and parses the server's JSON response. When
// the server reports only flat text without segments, one segment spanning
// the whole buffer is synthesized.
func (e *HTTP) Transcribe(ctx context.Context, samples []float32, opts asr.Options) ([]asr.Segment, error) {
	samples, shift := prepareSamples(samples, e.sampleRate, opts)
	if len(samples) == 0 {
		return nil, nil
	}

	body, contentType, err := e.encodeForm(samples, opts)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text     string `json:"text"`
		Segments []struct {
			Start float64 `json:"start"`
			End   float64 `json:"end"`
			Text  string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	var segs []asr.Segment
	for _, s := range result.Segments {
		segs = append(segs, asr.Segment{
			Start: time.Duration(s.Start * float64(time.Second)),
			End:   time.Duration(s.End * float64(time.Second)),
			Text:  s.Text,
		})
	}
	if len(segs) == 0 && result.Text != "" {
		segs = append(segs, asr.Segment{
			Start: 0,
			End:   audio.Duration(len(samples), whisperRate),
			Text:  result.Text,
		})
	}
	return cleanSegments(segs, shift), nil
}

// encodeForm builds the multipart body: the WAV-encoded buffer plus hint
// fields the whisper-server understands.
func (e *HTTP) encodeForm(samples []float32, opts asr.Options) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(encodeWAV(audio.BytesFromSamples(samples), whisperRate)); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "json",
	}
	lang := opts.Language
	if lang == "" {
		lang = e.language
	}
	if lang != "" {
		fields["language"] = lang
	}
	if opts.InitialPrompt != "" {
		fields["prompt"] = opts.InitialPrompt
	}
	if opts.Translate {
		fields["translate"] = "true"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("whisper: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// encodeWAV wraps raw 16-bit signed little-endian mono PCM in a RIFF/WAV
// container suitable for a form upload.
func encodeWAV(pcm []byte, sampleRate int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], bitsPerSample/8)
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)
	return buf
}
