package index

import (
	"errors"
	"strconv"
	"time"
)

// Key layout
//
//	entry:{source}\x00{name} -> Record
//	done:{path}              -> modification time in unix nanoseconds
const (
	PrefixEntry     = "entry:"
	PrefixProcessed = "done:"

	nameSeparator = "\x00"
)

var ErrKeyNotFound = errors.New("key not found")

// Record is one catalogued entry. Plain files are their own source; an
// archive member is recorded under the archive it was read from.
type Record struct {
	Source  string    `json:"source" yaml:"source"`
	Name    string    `json:"name" yaml:"name"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
	Archive bool      `json:"archive,omitempty" yaml:"archive,omitempty"`
}

func EntryKey(source, name string) []byte {
	return []byte(PrefixEntry + source + nameSeparator + name)
}

// SourcePrefix matches every record of exactly one source.
func SourcePrefix(source string) []byte {
	return []byte(PrefixEntry + source + nameSeparator)
}

func ProcessedKey(path string) []byte {
	return []byte(PrefixProcessed + path)
}

func encodeModTime(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.UnixNano(), 10))
}

func decodeModTime(b []byte) (time.Time, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n), nil
}

// StorageError wraps storage-specific errors
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key == "" {
		return "storage " + e.Op + ": " + e.Err.Error()
	}
	return "storage " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
