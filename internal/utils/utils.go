package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/andresmejia3/redactor/internal/types"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (ffmpeg logs)
// This ensures we don't lose the encoder's diagnostics if it dies mid-stream.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ErrorOutput is where ShowError writes its report.
var ErrorOutput io.Writer = os.Stderr

// ShowError prints a formatted error box. When err carries a stage and asset
// they are reported, and captured subprocess logs are dumped if s is given.
func ShowError(context string, err error, s *SafeCommand) {
	w := ErrorOutput
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "🚨 REDACTOR ERROR: %s\n", context)

	var stageErr *types.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintf(w, "STAGE:   %s\n", stageErr.Stage)
		fmt.Fprintf(w, "ASSET:   %s\n", stageErr.AssetID)
	}
	if err != nil {
		fmt.Fprintf(w, "DETAILS: %v\n", err)
	}

	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(w, "\nFFMPEG LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// --- 2. Video Engine ---

// FFmpegEncoder streams raw RGBA frames into an ffmpeg process writing an MP4 file.
type FFmpegEncoder struct {
	cmd       *SafeCommand
	stdin     io.WriteCloser
	width     int
	height    int
	frameSize int
}

// NewFFmpegEncoder starts ffmpeg reading rawvideo from stdin at a constant frame rate.
// The mpeg4 codec accepts odd frame dimensions, which libx264 with yuv420p does not.
func NewFFmpegEncoder(ctx context.Context, outputPath string, fps float64, width, height int) (*FFmpegEncoder, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid encoder geometry %dx%d @ %v fps", width, height, fps)
	}

	rate := strconv.FormatFloat(fps, 'f', -1, 64)
	cmd := NewSafeCommand(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-framerate", rate,
		"-i", "-",
		"-c:v", "mpeg4", "-q:v", "2",
		"-pix_fmt", "yuv420p",
		"-r", rate,
		"-f", "mp4",
		outputPath,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	return &FFmpegEncoder{
		cmd:       cmd,
		stdin:     stdin,
		width:     width,
		height:    height,
		frameSize: width * height * 4,
	}, nil
}

// WriteFrame writes one frame. Its size must match the encoder geometry.
func (e *FFmpegEncoder) WriteFrame(img *image.RGBA) error {
	b := img.Bounds()
	if b.Dx() != e.width || b.Dy() != e.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), e.width, e.height)
	}
	if img.Stride == e.width*4 && len(img.Pix) >= e.frameSize {
		_, err := e.stdin.Write(img.Pix[:e.frameSize])
		return e.wrap(err)
	}
	// Sub-images carry a wider stride; send row by row.
	for y := 0; y < e.height; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		if _, err := e.stdin.Write(img.Pix[off : off+e.width*4]); err != nil {
			return e.wrap(err)
		}
	}
	return nil
}

// Close flushes stdin and waits for ffmpeg to finish the container.
func (e *FFmpegEncoder) Close() error {
	e.stdin.Close()
	return e.wrap(e.cmd.Wait())
}

// ProcessError is a subprocess failure that keeps the process for its logs.
type ProcessError struct {
	Cmd *SafeCommand
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Cmd.Args[0], e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Stderr returns what the process wrote to stderr, trimmed.
func (e *ProcessError) Stderr() string {
	return string(bytes.TrimSpace(e.Cmd.Stderr.Bytes()))
}

// CommandOf returns the process behind err, or nil if err did not come
// from a subprocess. Pass it to ShowError to dump the process logs.
func CommandOf(err error) *SafeCommand {
	var procErr *ProcessError
	if errors.As(err, &procErr) {
		return procErr.Cmd
	}
	return nil
}

func (e *FFmpegEncoder) wrap(err error) error {
	if err == nil {
		return nil
	}
	return &ProcessError{Cmd: e.cmd, Err: err}
}

// VideoInfo is what ffprobe reports about the first video stream.
type VideoInfo struct {
	Frames int
	Width  int
	Height int
}

type ffprobeStream struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	NbFrames      string `json:"nb_frames"`
	NbReadPackets string `json:"nb_read_packets"`
}

// ProbeVideo uses ffprobe to read the frame count and dimensions of a video.
func ProbeVideo(ctx context.Context, path string) (VideoInfo, error) {
	// 0. Check dependency
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	// 1. Fast Path: Check Container Metadata
	// This is instant but might return "N/A" for some muxers.
	stream, err := runProbe(ctx, "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height,nb_frames", "-of", "json", path)
	if err != nil {
		return VideoInfo{}, err
	}
	info := VideoInfo{Width: stream.Width, Height: stream.Height}
	if count, err := strconv.Atoi(stream.NbFrames); err == nil && count > 0 {
		info.Frames = count
		return info, nil
	}

	// 2. Slow Path: Count Packets (Fallback)
	stream, err = runProbe(ctx, "-v", "error", "-select_streams", "v:0", "-count_packets",
		"-show_entries", "stream=nb_read_packets", "-of", "json", path)
	if err != nil {
		return VideoInfo{}, err
	}
	count, err := strconv.Atoi(stream.NbReadPackets)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe integer parse error: %w", err)
	}
	info.Frames = count
	return info, nil
}

func runProbe(ctx context.Context, args ...string) (ffprobeStream, error) {
	out, err := exec.CommandContext(ctx, "ffprobe", args...).Output()
	if err != nil {
		return ffprobeStream{}, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (ffprobeStream, error) {
	var res struct {
		Streams []ffprobeStream `json:"streams"`
	}
	if err := json.Unmarshal(out, &res); err != nil {
		return ffprobeStream{}, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}
	if len(res.Streams) == 0 {
		return ffprobeStream{}, errors.New("ffprobe found no video stream")
	}
	return res.Streams[0], nil
}

// GenerateAssetID creates a deterministic hash for a local file
// based on its path, size, and modification time.
func GenerateAssetID(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
