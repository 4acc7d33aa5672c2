package walker

import "fmt"

// Signal is returned by a Handler to steer the traversal of the current
// subtree. The zero value is the unset signal and is treated as Continue.
type Signal int

const (
	// Continue visits everything below the entry.
	Continue Signal = iota + 1
	// SkipAll prunes the directory's children, or, when returned for a
	// child, the remaining siblings of that child. Siblings of the pruned
	// directory itself are still visited.
	SkipAll
	// SkipFiles suppresses the files directly inside the directory.
	SkipFiles
	// SkipSubdirs suppresses the subdirectories directly inside the directory.
	SkipSubdirs
	// Stop aborts the whole traversal.
	Stop
)

var signalNames = map[Signal]string{
	Continue:    "CONTINUE",
	SkipAll:     "SKIP_ALL",
	SkipFiles:   "SKIP_FILES",
	SkipSubdirs: "SKIP_SUBDIRS",
	Stop:        "STOP",
}

var signalsByName = map[string]Signal{
	"CONTINUE":     Continue,
	"SKIP_ALL":     SkipAll,
	"SKIP_FILES":   SkipFiles,
	"SKIP_SUBDIRS": SkipSubdirs,
	"STOP":         Stop,
}

// Signals returns every signal in declaration order.
func Signals() []Signal {
	return []Signal{Continue, SkipAll, SkipFiles, SkipSubdirs, Stop}
}

// ParseSignal looks a signal up by its canonical name. An empty name is
// absent and yields the unset signal without error.
func ParseSignal(name string) (Signal, error) {
	if name == "" {
		return 0, nil
	}
	s, ok := signalsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
	return s, nil
}

// IsValidSignal reports whether name is empty or a canonical signal name.
func IsValidSignal(name string) bool {
	if name == "" {
		return true
	}
	_, ok := signalsByName[name]
	return ok
}

func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	if s == 0 {
		return ""
	}
	return fmt.Sprintf("Signal(%d)", int(s))
}

// IsSet reports whether s is one of the five canonical signals.
func (s Signal) IsSet() bool {
	_, ok := signalNames[s]
	return ok
}

func (s Signal) MarshalText() ([]byte, error) {
	if s != 0 && !s.IsSet() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignal, int(s))
	}
	return []byte(s.String()), nil
}

func (s *Signal) UnmarshalText(text []byte) error {
	parsed, err := ParseSignal(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
