// Package errorfile reports whether files are intact. It resolves a file's
// extension to a checker, optionally rejects files whose leading bytes do
// not match the extension, and runs the checker in fast or deep mode.
//
// The functions in this package use a shared engine with every compiled-in
// checker group. Programs that need their own registry or cache build one
// with scanner.New.
package errorfile
