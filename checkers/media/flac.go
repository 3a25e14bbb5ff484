package media

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/report"
)

// CheckFLAC parses STREAMINFO in fast mode. Deep mode parses every metadata
// block and decodes every audio frame, which verifies the frame CRCs.
func CheckFLAC(path string, mode report.Mode) report.Finding {
	if mode == report.ModeFast {
		stream, err := flac.Open(path)
		if err != nil {
			return flacFailure("flac stream header", err)
		}
		defer stream.Close()
		return report.Pass(fmt.Sprintf("flac stream info valid (%d Hz, %d channels)", stream.Info.SampleRate, stream.Info.NChannels))
	}

	stream, err := flac.ParseFile(path)
	if err != nil {
		return flacFailure("flac metadata", err)
	}
	defer stream.Close()

	frames := 0
	for {
		_, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report.FailErr(fmt.Sprintf("flac frame %d is damaged", frames+1), err, report.TagCorrupted)
		}
		frames++
	}
	return report.Pass(fmt.Sprintf("flac decoded (%d frames)", frames))
}

func flacFailure(what string, err error) report.Finding {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return report.FailErr(what+" is truncated", err, report.TagCorrupted)
	}
	return checkers.Invalid(what+" is invalid", err)
}
