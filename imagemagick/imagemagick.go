package imagemagick

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"
)

const defaultBinary = "convert"

// Resizer pipes images through ImageMagick as PNG.
type Resizer struct {
	// Binary defaults to "convert".
	Binary string
	Logger hclog.Logger
}

func (r *Resizer) binary() string {
	if r.Binary == "" {
		return defaultBinary
	}
	return r.Binary
}

func (r *Resizer) Resize(img image.Image, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}

	in := &bytes.Buffer{}
	err := png.Encode(in, img)
	if err != nil {
		return nil, fmt.Errorf("Failed to encode input: %w", err)
	}

	// "!" ignores the original aspect ratio
	size := fmt.Sprintf("%dx%d!", width, height)

	args := []string{
		// use only the first frame
		"png:-[0]",

		"-filter", "Lanczos",
		"-resize", size,
		"-strip",
		"png:-",
	}

	if r.Logger != nil {
		r.Logger.Debug("Exec", "binary", r.binary(), "args", strings.Join(args, " "))
	}

	out := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := exec.Command(r.binary(), args...)
	cmd.Stdin = in
	cmd.Stdout = out
	cmd.Stderr = stderr
	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("Failed to resize image: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	resized, err := png.Decode(out)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode output: %w", err)
	}
	return resized, nil
}

func Version(binary string) (string, error) {
	if binary == "" {
		binary = defaultBinary
	}
	ver, err := exec.Command(binary, "-version").Output()
	if err != nil {
		return "", err
	}
	return string(ver), nil
}
