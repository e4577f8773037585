package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"assembly-worker/constant"
)

// FFmpeg shells out to the ffmpeg/ffprobe binaries. Availability is checked
// once at construction and the instance is injected where needed.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
}

func NewFFmpeg() (*FFmpeg, error) {
	ffmpegBin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	ffprobeBin, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &FFmpeg{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin}, nil
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

func (f *FFmpeg) Probe(ctx context.Context, file string) (Metadata, error) {
	cmd := exec.CommandContext(ctx, f.ffprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		file,
	)
	out, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe %s: %w", file, err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output for %s: %w", file, err)
	}

	meta := Metadata{}
	meta.Duration, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	for _, s := range probed.Streams {
		switch s.CodecType {
		case "video":
			meta.Width = s.Width
			meta.Height = s.Height
			meta.FPS = parseFrameRate(s.AvgFrameRate)
			if meta.FPS == 0 {
				meta.FPS = parseFrameRate(s.RFrameRate)
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	return meta, nil
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to a float.
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		v, _ := strconv.ParseFloat(rate, 64)
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func (f *FFmpeg) Concat(ctx context.Context, files []string, output string) error {
	if len(files) == 0 {
		return fmt.Errorf("no files to concat")
	}

	listPath := filepath.Join(filepath.Dir(output), "concat_list.txt")
	defer os.Remove(listPath)

	var listContent strings.Builder
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		listContent.WriteString(fmt.Sprintf("file '%s'\n", escapedPath))
	}
	if err := os.WriteFile(listPath, []byte(listContent.String()), 0644); err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		"-y",
		output,
	}
	return f.run(ctx, args)
}

// xfadeName maps a transition to ffmpeg's xfade filter name.
func xfadeName(transition constant.TransitionType) string {
	switch transition {
	case constant.TransitionWipe:
		return "wipeleft"
	case constant.TransitionDissolve:
		return "dissolve"
	case constant.TransitionSlideDown:
		return "slidedown"
	case constant.TransitionSlideUp:
		return "slideup"
	default:
		return "fade"
	}
}

func blendFilter(transition constant.TransitionType, duration, offset float64, withAudio bool) string {
	filter := fmt.Sprintf("[0:v][1:v]xfade=transition=%s:duration=%.3f:offset=%.3f[v]",
		xfadeName(transition), duration, offset)
	if withAudio {
		filter += fmt.Sprintf(";[0:a][1:a]acrossfade=d=%.3f[a]", duration)
	}
	return filter
}

func (f *FFmpeg) Blend(ctx context.Context, fileA, fileB string, transition constant.TransitionType, duration float64, output string) error {
	metaA, err := f.Probe(ctx, fileA)
	if err != nil {
		return err
	}
	metaB, err := f.Probe(ctx, fileB)
	if err != nil {
		return err
	}

	offset := metaA.Duration - duration
	if offset < 0 {
		return fmt.Errorf("transition duration %.3fs exceeds segment duration %.3fs", duration, metaA.Duration)
	}

	// acrossfade needs audio on both sides; otherwise blend video only.
	withAudio := metaA.HasAudio && metaB.HasAudio
	args := []string{
		"-i", fileA,
		"-i", fileB,
		"-filter_complex", blendFilter(transition, duration, offset, withAudio),
		"-map", "[v]",
	}
	if withAudio {
		args = append(args, "-map", "[a]", "-c:a", "aac", "-b:a", "128k")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "22",
		"-movflags", "+faststart",
		"-y",
		output,
	)
	return f.run(ctx, args)
}

// escapeDrawtext escapes characters that terminate or reinterpret a drawtext
// text value inside a filter graph.
func escapeDrawtext(text string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(text)
}

func drawtextY(position constant.SubtitlePosition) string {
	switch position {
	case constant.SubtitlePositionTop:
		return "h*0.1"
	case constant.SubtitlePositionCenter:
		return "(h-text_h)/2"
	default:
		return "h-text_h-h*0.1"
	}
}

func drawtextFilter(text string, position constant.SubtitlePosition, fontSize int) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontsize=%d:fontcolor=white:borderw=2:bordercolor=black:x=(w-text_w)/2:y=%s",
		escapeDrawtext(text), fontSize, drawtextY(position))
}

func (f *FFmpeg) BurnSubtitle(ctx context.Context, file, text string, position constant.SubtitlePosition, fontSize int, output string) error {
	args := []string{
		"-i", file,
		"-vf", drawtextFilter(text, position, fontSize),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "22",
		"-c:a", "copy",
		"-movflags", "+faststart",
		"-y",
		output,
	}
	return f.run(ctx, args)
}

func reencodeArgs(file string, spec EncodeSpec, output string) []string {
	scale := fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=w=%d:h=%d:x=(ow-iw)/2:y=(oh-ih)/2",
		spec.Width, spec.Height, spec.Width, spec.Height)
	args := []string{
		"-i", file,
		"-vf", scale,
		"-c:v", "libx264",
		"-preset", "medium",
		"-b:v", spec.Bitrate,
		"-maxrate", spec.Bitrate,
		"-bufsize", spec.Bitrate,
		"-c:a", "aac",
		"-b:a", "128k",
	}
	if spec.MaxDuration > 0 {
		// Trim from the end; the hook is at the front of the timeline.
		args = append(args, "-t", fmt.Sprintf("%.3f", spec.MaxDuration))
	}
	return append(args, "-movflags", "+faststart", "-y", output)
}

func (f *FFmpeg) Reencode(ctx context.Context, file string, spec EncodeSpec, output string) error {
	return f.run(ctx, reencodeArgs(file, spec, output))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegBin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w\nOutput: %s", err, string(output))
	}
	return nil
}
