// Package images checks raster images and SVG documents.
package images

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

// MaxDecodePixels caps full decodes; larger images get a header-only verdict
// tagged partial.
var MaxDecodePixels = 100_000_000

const tailWindow = 1024

var (
	jpegEOI    = []byte{0xFF, 0xD9}
	pngIEND    = []byte{'I', 'E', 'N', 'D', 0xAE, 0x42, 0x60, 0x82}
	gifTrailer = []byte{0x3B}
	exifMark   = []byte("Exif\x00\x00")
)

func Register(reg *registry.Registry) {
	checkers.RegisterAll(reg, CheckRaster, ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff")
	reg.RegisterFunc(".svg", CheckSVG)
}

// CheckRaster decodes the image header in fast mode and every pixel in deep
// mode.
func CheckRaster(path string, mode report.Mode) report.Finding {
	f, err := fileio.OpenSequential(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return checkers.Invalid("not a recognised image", err)
		}
		return checkers.Corrupt("image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return checkers.Invalid(fmt.Sprintf("%s has empty dimensions %dx%d", format, cfg.Width, cfg.Height), nil)
	}
	if failed := checkTrailer(path, format); failed != nil {
		return *failed
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("%s header valid (%dx%d)", format, cfg.Width, cfg.Height))
	}

	if cfg.Width*cfg.Height > MaxDecodePixels {
		return report.Pass(fmt.Sprintf("%s header valid; %dx%d exceeds decode limit", format, cfg.Width, cfg.Height), report.TagPartial)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}
	br := bufio.NewReader(f)
	if format == "gif" {
		g, err := gif.DecodeAll(br)
		if err != nil {
			return checkers.Corrupt("gif frame data", err)
		}
		if len(g.Image) == 0 {
			return checkers.Invalid("gif has no frames", nil)
		}
	} else if _, _, err := image.Decode(br); err != nil {
		return checkers.Corrupt(format+" pixel data", err)
	}

	if format == "jpeg" {
		if failed := checkExif(f); failed != nil {
			return *failed
		}
	}
	return report.Pass(fmt.Sprintf("%s decoded (%dx%d)", format, cfg.Width, cfg.Height))
}

// checkTrailer catches truncation that header decoding cannot see. Trailing
// NUL padding is tolerated.
func checkTrailer(path, format string) *report.Finding {
	var marker []byte
	switch format {
	case "jpeg":
		marker = jpegEOI
	case "png":
		marker = pngIEND
	case "gif":
		marker = gifTrailer
	default:
		return nil
	}
	tail, err := fileio.ReadTail(path, tailWindow)
	if err != nil {
		f := checkers.IOFail(err)
		return &f
	}
	if bytes.HasSuffix(bytes.TrimRight(tail, "\x00"), marker) {
		return nil
	}
	f := report.Fail(fmt.Sprintf("%s is truncated: end marker missing", format), report.TagCorrupted)
	return &f
}

// checkExif decodes the EXIF block when the JPEG carries one.
func checkExif(f *os.File) *report.Finding {
	head := make([]byte, 64*1024)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		fail := checkers.IOFail(err)
		return &fail
	}
	if !bytes.Contains(head[:n], exifMark) {
		return nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		fail := checkers.IOFail(err)
		return &fail
	}
	if _, err := exif.Decode(f); err != nil && exif.IsCriticalError(err) {
		fail := report.FailErr("jpeg EXIF segment is damaged", err, report.TagCorrupted)
		return &fail
	}
	return nil
}
