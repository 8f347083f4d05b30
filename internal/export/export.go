// Package export renders equalization results as pixel map images.
package export

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"pixel-equalizer/internal/equalize"
	"pixel-equalizer/pkg/colorutil"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Options control WriteResult.
type Options struct {
	Format  string // "tiff" (default) or "png"
	Scale   int    // Output pixels per detector pixel; <= 0 means 1
	HeatMap bool   // Also write a color ramp of the settings
}

// WriteSettingsMap writes one chip's settings as a 16-bit gray image where
// maxSetting maps to white. Each detector pixel becomes a scale x scale block.
func WriteSettingsMap(path string, settings [][]int32, maxSetting, scale int) error {
	src := image.NewGray16(bounds(settings))
	for y, row := range settings {
		for x, v := range row {
			src.SetGray16(x, y, colorutil.Gray16(float64(v), float64(maxSetting)))
		}
	}
	return encode(path, upscale(src, scale))
}

// WriteHeatMap writes one chip's settings through the blue to red ramp.
func WriteHeatMap(path string, settings [][]int32, maxSetting, scale int) error {
	src := image.NewRGBA(bounds(settings))
	for y, row := range settings {
		for x, v := range row {
			t := 0.0
			if maxSetting > 0 {
				t = float64(v) / float64(maxSetting)
			}
			src.SetRGBA(x, y, colorutil.Ramp(t))
		}
	}
	return encode(path, upscale(src, scale))
}

// WriteFlagMap writes one chip's range and mask flags. Masked pixels are
// magenta, ranged pixels cyan and the rest black.
func WriteFlagMap(path string, ranges, masks [][]bool, scale int) error {
	if len(ranges) != len(masks) {
		return fmt.Errorf("flag rows differ: %d range, %d mask", len(ranges), len(masks))
	}
	src := image.NewRGBA(bounds(ranges))
	for y := range ranges {
		if len(ranges[y]) != len(masks[y]) {
			return fmt.Errorf("flag row %d differs: %d range, %d mask", y, len(ranges[y]), len(masks[y]))
		}
		for x := range ranges[y] {
			src.SetRGBA(x, y, colorutil.Flag(ranges[y][x], masks[y][x]))
		}
	}
	return encode(path, upscale(src, scale))
}

// WriteResult writes the settings and flag maps of every chip in res to dir
// and returns the written paths in chip order.
func WriteResult(dir string, res *equalize.Result, opts Options) ([]string, error) {
	ext, err := extension(opts.Format)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	maxSetting := MaxSetting(res)
	var paths []string
	for c := 0; c < res.Chips(); c++ {
		prefix := filepath.Join(dir, fmt.Sprintf("%s_chip%02d", res.Modality, c))

		p := prefix + "_settings" + ext
		if err := WriteSettingsMap(p, res.Settings[c], maxSetting, opts.Scale); err != nil {
			return paths, fmt.Errorf("chip %d: %w", c, err)
		}
		paths = append(paths, p)

		p = prefix + "_flags" + ext
		if err := WriteFlagMap(p, res.Range[c], res.Mask[c], opts.Scale); err != nil {
			return paths, fmt.Errorf("chip %d: %w", c, err)
		}
		paths = append(paths, p)

		if opts.HeatMap {
			p = prefix + "_heat" + ext
			if err := WriteHeatMap(p, res.Settings[c], maxSetting, opts.Scale); err != nil {
				return paths, fmt.Errorf("chip %d: %w", c, err)
			}
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// MaxSetting returns the largest setting in res, at least 1.
func MaxSetting(res *equalize.Result) int {
	hi := int32(1)
	for c := range res.Settings {
		for _, row := range res.Settings[c] {
			for _, v := range row {
				if v > hi {
					hi = v
				}
			}
		}
	}
	return int(hi)
}

// Load decodes a map written by this package.
func Load(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

func bounds[T any](grid [][]T) image.Rectangle {
	w := 0
	if len(grid) > 0 {
		w = len(grid[0])
	}
	return image.Rect(0, 0, w, len(grid))
}

func upscale(src image.Image, scale int) image.Image {
	if scale <= 1 {
		return src
	}
	sb := src.Bounds()
	r := image.Rect(0, 0, sb.Dx()*scale, sb.Dy()*scale)

	var dst draw.Image
	switch src.(type) {
	case *image.Gray16:
		dst = image.NewGray16(r)
	default:
		dst = image.NewRGBA(r)
	}
	draw.NearestNeighbor.Scale(dst, r, src, sb, draw.Src, nil)
	return dst
}

func extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "tiff", "tif":
		return ".tif", nil
	case "png":
		return ".png", nil
	}
	return "", fmt.Errorf("unsupported export format %q", format)
}

func encode(path string, img image.Image) error {
	if img.Bounds().Empty() {
		return fmt.Errorf("empty pixel map")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".tif" && ext != ".tiff" && ext != ".png" {
		return fmt.Errorf("unsupported image extension %q", filepath.Ext(path))
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if ext == ".png" {
		err = png.Encode(file, img)
	} else {
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
