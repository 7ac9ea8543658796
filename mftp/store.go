package mftp

import (
	"errors"
	"time"
)

var errRecordNotFound = errors.New("record not found")

// FileRecord is one entry of the content store. Filenames are unique only
// within an owner's namespace.
type FileRecord struct {
	ID         string
	Filename   string
	Owner      string
	Group      string
	Size       int64
	ModifiedAt time.Time
	Content    []byte
}

// FileMeta carries the metadata written alongside new content.
type FileMeta struct {
	Filename   string
	Owner      string
	Group      string
	ModifiedAt time.Time
}

type User struct {
	Username     string
	PasswordHash string
}

// FileStore is the external content store the protocol engine runs against.
// Lookups that miss return (nil, nil), not an error.
type FileStore interface {
	FindByOwner(owner string) ([]FileRecord, error)
	FindByName(filename string) (*FileRecord, error)
	FindByNameAndOwner(filename, owner string) (*FileRecord, error)
	FindPendingRename(owner string) (*FileRecord, error)
	Store(content []byte, meta FileMeta) (string, error)
	Remove(filename, owner string) (int64, error)
	RemoveID(id string) error
	// RenameTo changes the record's filename and refreshes its modification
	// time; clearPending drops a pending-rename marker in the same update.
	RenameTo(id, newName string, clearPending bool) error
	MarkPendingRename(id string) error
	// ClearPendingRename drops the marker and nothing else; the record's
	// modification time stays untouched.
	ClearPendingRename(id string) error
	LookupUser(username string) (*User, error)
}

// Log is the audit sink. Writes are fire-and-forget; implementations must not
// surface delivery failures to the caller.
type Log interface {
	Write(message string)
}
