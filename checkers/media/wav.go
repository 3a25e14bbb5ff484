package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

type riffLayout struct {
	hasFmt  bool
	hasData bool
}

// CheckWAV walks the RIFF chunks and checks the format header in fast mode;
// deep mode decodes the full PCM payload.
func CheckWAV(path string, mode report.Mode) report.Finding {
	f, err := os.Open(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return checkers.IOFail(err)
	}

	layout, err := walkRIFF(f, info.Size())
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return report.FailErr("wav is truncated", err, report.TagCorrupted)
		}
		return checkers.Invalid("not a RIFF/WAVE file", err)
	}
	if !layout.hasFmt || !layout.hasData {
		return report.Fail("wav lacks a fmt or data chunk", report.TagCorrupted)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return report.FailErr("wav format header is invalid", dec.Err(), report.TagCorrupted, report.TagInvalidFormat)
	}
	if mode == report.ModeFast {
		return report.Pass(fmt.Sprintf("wav header valid (%d Hz, %d ch, %d bit)", dec.SampleRate, dec.NumChans, dec.BitDepth))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return checkers.IOFail(err)
	}
	dec = wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return checkers.Corrupt("wav sample data", err)
	}
	if err := dec.Err(); err != nil {
		return checkers.Corrupt("wav sample data", err)
	}
	return report.Pass(fmt.Sprintf("wav decoded (%d samples)", len(buf.Data)))
}

// walkRIFF checks that every chunk fits inside the file.
func walkRIFF(r io.ReaderAt, size int64) (riffLayout, error) {
	var layout riffLayout
	var hdr [12]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return layout, fmt.Errorf("short header: %w", io.ErrUnexpectedEOF)
		}
		return layout, err
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return layout, errors.New("missing RIFF/WAVE signature")
	}
	riffEnd := int64(binary.LittleEndian.Uint32(hdr[4:8])) + 8
	if riffEnd > size {
		return layout, fmt.Errorf("RIFF declares %d bytes, file has %d: %w", riffEnd, size, io.ErrUnexpectedEOF)
	}

	var chunk [8]byte
	for off := int64(12); off+8 <= riffEnd; {
		if _, err := r.ReadAt(chunk[:], off); err != nil {
			return layout, err
		}
		id := string(chunk[0:4])
		n := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		if off+8+n > riffEnd {
			return layout, fmt.Errorf("chunk %q overruns RIFF payload: %w", id, io.ErrUnexpectedEOF)
		}
		switch id {
		case "fmt ":
			if n < 16 {
				return layout, fmt.Errorf("fmt chunk is %d bytes", n)
			}
			layout.hasFmt = true
		case "data":
			layout.hasData = true
		}
		off += 8 + n + n%2
	}
	return layout, nil
}
