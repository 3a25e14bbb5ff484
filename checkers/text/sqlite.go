package text

import (
	"bytes"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/Hellohistory/ErrorFile/checkers"
	"github.com/Hellohistory/ErrorFile/fileio"
	"github.com/Hellohistory/ErrorFile/report"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// CheckSQLite opens the database read-only and runs PRAGMA quick_check in
// fast mode or PRAGMA integrity_check in deep mode.
func CheckSQLite(path string, mode report.Mode) report.Finding {
	head, err := fileio.ReadHeader(path, len(sqliteMagic))
	if err != nil {
		return checkers.IOFail(err)
	}
	if !bytes.Equal(head, sqliteMagic) {
		return checkers.Invalid("SQLite header is missing", nil)
	}

	dsn, err := readOnlyDSN(path)
	if err != nil {
		return checkers.IOFail(err)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return checkers.IOFail(err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	pragma := "PRAGMA quick_check"
	if mode == report.ModeDeep {
		pragma = "PRAGMA integrity_check"
	}
	var status string
	if err := db.QueryRow(pragma).Scan(&status); err != nil {
		return sqliteFailure(err)
	}
	if !strings.EqualFold(strings.TrimSpace(status), "ok") {
		return report.Fail("SQLite integrity check failed: "+status, report.TagCorrupted)
	}
	return report.Pass(fmt.Sprintf("SQLite %s ok", strings.TrimPrefix(pragma, "PRAGMA ")))
}

func readOnlyDSN(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: "mode=ro"}
	return u.String(), nil
}

func sqliteFailure(err error) report.Finding {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "not a database"):
		return checkers.Invalid("file is not a SQLite database", err)
	case strings.Contains(msg, "malformed"), strings.Contains(msg, "corrupt"):
		return report.FailErr("SQLite database is damaged", err, report.TagCorrupted)
	case strings.Contains(msg, "unable to open"):
		return checkers.IOFail(err)
	}
	return checkers.Corrupt("SQLite database", err)
}
