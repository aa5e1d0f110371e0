// errors/archive_errors.go

package errors

import "errors"

var (
	ErrArchiveNotFound = errors.New("archive not found")
	ErrArchiveClosed   = errors.New("archive closed")
	ErrManagerClosed   = errors.New("archive manager closed")
	ErrFileNotFound    = errors.New("file not found in archive")
	ErrNoPeers         = errors.New("no peers configured")
)
