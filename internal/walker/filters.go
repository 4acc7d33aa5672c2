package walker

import (
	"path/filepath"
	"strings"
)

// Predicate decides whether an entry is of interest
type Predicate func(entry Entry) bool

// FilterHandler hands entries matching pred to next. Other entries get
// Continue, so a directory that does not match is still descended into.
func FilterHandler(pred Predicate, next Handler) Handler {
	return HandlerFunc(func(entry Entry) (Signal, error) {
		if !pred(entry) {
			return Continue, nil
		}
		return next.Handle(entry)
	})
}

// And matches when every predicate matches. With no predicates it matches everything.
func And(preds ...Predicate) Predicate {
	return func(entry Entry) bool {
		for _, p := range preds {
			if !p(entry) {
				return false
			}
		}
		return true
	}
}

// Or matches when any predicate matches. With no predicates it matches nothing.
func Or(preds ...Predicate) Predicate {
	return func(entry Entry) bool {
		for _, p := range preds {
			if p(entry) {
				return true
			}
		}
		return false
	}
}

func Not(pred Predicate) Predicate {
	return func(entry Entry) bool {
		return !pred(entry)
	}
}

func IsDir(entry Entry) bool {
	return entry.IsDir()
}

func IsFile(entry Entry) bool {
	return entry.Info != nil && entry.Info.Mode().IsRegular()
}

// IsHidden matches entries whose base name starts with a dot.
func IsHidden(entry Entry) bool {
	name := entry.Name()
	return len(name) > 0 && name[0] == '.' && name != "." && name != ".."
}

// HasExtension matches entries with one of the given extensions, compared
// case-insensitively. The leading dot is optional.
func HasExtension(exts ...string) Predicate {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[strings.ToLower(ext)] = true
	}
	return func(entry Entry) bool {
		return set[strings.ToLower(filepath.Ext(entry.Name()))]
	}
}

// MinSize matches files of at least size bytes. Directories never match.
func MinSize(size int64) Predicate {
	return func(entry Entry) bool {
		return IsFile(entry) && entry.Info.Size() >= size
	}
}

// MaxSize matches files of at most size bytes. Directories never match.
func MaxSize(size int64) Predicate {
	return func(entry Entry) bool {
		return IsFile(entry) && entry.Info.Size() <= size
	}
}
