// Package mediatest provides an in-process Transformer for tests. Transform
// outputs are plain text files that carry their inputs' contents, so tests
// can assert which segments ended up in the final artifact without ffmpeg.
package mediatest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"assembly-worker/constant"
	"assembly-worker/pkg/media"
)

type Fake struct {
	ProbeErr    error
	ConcatErr   error
	BlendErr    error
	BurnErr     error
	ReencodeErr error

	// Durations overrides the probed duration per file path; 10s otherwise.
	Durations map[string]float64

	// BlendGate, when set, is sent on at the start of every Blend call which
	// then waits for BlendRelease. Lets tests park a job mid-stage.
	BlendGate    chan struct{}
	BlendRelease chan struct{}

	mu          sync.Mutex
	calls       []string
	encodeSpecs []media.EncodeSpec
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

// Calls returns how many times the named operation ran.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// EncodeSpecs returns the specs passed to Reencode, in call order.
func (f *Fake) EncodeSpecs() []media.EncodeSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.EncodeSpec(nil), f.encodeSpecs...)
}

func (f *Fake) Probe(_ context.Context, file string) (media.Metadata, error) {
	f.record("probe")
	if f.ProbeErr != nil {
		return media.Metadata{}, f.ProbeErr
	}
	duration := 10.0
	if d, ok := f.Durations[file]; ok {
		duration = d
	}
	return media.Metadata{
		Duration: duration,
		Width:    1280,
		Height:   720,
		FPS:      30,
		HasAudio: true,
	}, nil
}

func (f *Fake) Concat(_ context.Context, files []string, output string) error {
	f.record("concat")
	if f.ConcatErr != nil {
		return f.ConcatErr
	}
	return writeJoined(output, "", files...)
}

func (f *Fake) Blend(_ context.Context, fileA, fileB string, transition constant.TransitionType, duration float64, output string) error {
	f.record("blend")
	if f.BlendGate != nil {
		f.BlendGate <- struct{}{}
		<-f.BlendRelease
	}
	if f.BlendErr != nil {
		return f.BlendErr
	}
	return writeJoined(output, fmt.Sprintf("[%s:%.2f]", transition, duration), fileA, fileB)
}

func (f *Fake) BurnSubtitle(_ context.Context, file, text string, _ constant.SubtitlePosition, _ int, output string) error {
	f.record("burn")
	if f.BurnErr != nil {
		return f.BurnErr
	}
	return writeJoined(output, fmt.Sprintf("[sub:%s]", text), file)
}

func (f *Fake) Reencode(_ context.Context, file string, spec media.EncodeSpec, output string) error {
	f.record("reencode")
	f.mu.Lock()
	f.encodeSpecs = append(f.encodeSpecs, spec)
	f.mu.Unlock()
	if f.ReencodeErr != nil {
		return f.ReencodeErr
	}
	return writeJoined(output, fmt.Sprintf("[encode:%dx%d]", spec.Width, spec.Height), file)
}

func writeJoined(output, marker string, inputs ...string) error {
	var sb strings.Builder
	for _, in := range inputs {
		content, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		sb.Write(content)
		sb.WriteString("\n")
	}
	sb.WriteString(marker)
	return os.WriteFile(output, []byte(sb.String()), 0644)
}
