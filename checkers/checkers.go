// Package checkers holds helpers shared by the format checker groups in its
// subpackages.
package checkers

import (
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/Hellohistory/ErrorFile/registry"
	"github.com/Hellohistory/ErrorFile/report"
)

// Func is the shape every format checker in this tree implements.
type Func = func(path string, mode report.Mode) report.Finding

// RegisterAll binds every extension in exts to fn.
func RegisterAll(reg *registry.Registry, fn Func, exts ...string) {
	for _, ext := range exts {
		reg.RegisterFunc(ext, fn)
	}
}

// IOFail reports a failure to open or read the file itself.
func IOFail(err error) report.Finding {
	return report.FailErr("could not read file", err, report.TagIOError)
}

// Corrupt reports structurally broken content, classifying password and
// truncation errors on the way.
func Corrupt(what string, err error) report.Finding {
	if IsEncrypted(err) {
		return report.FailErr(what+" is password protected", err, report.TagEncrypted)
	}
	if isPathError(err) {
		return IOFail(err)
	}
	return report.FailErr(what+" is damaged", err, report.TagCorrupted)
}

// Invalid reports content that is not an instance of the claimed format.
func Invalid(msg string, err error) report.Finding {
	if err == nil {
		return report.Fail(msg, report.TagInvalidFormat, report.TagCorrupted)
	}
	return report.FailErr(msg, err, report.TagInvalidFormat, report.TagCorrupted)
}

// IsEncrypted recognises the password errors the decoding libraries return.
func IsEncrypted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypted")
}

func isPathError(err error) bool {
	var pe *fs.PathError
	return errors.As(err, &pe) && !errors.Is(err, io.ErrUnexpectedEOF)
}

// Truncated reports whether err means the data stopped early.
func Truncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
