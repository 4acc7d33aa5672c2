package walker

import (
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

// Order selects how the children of a directory are arranged before they
// are visited. The zero value is unset and rejected by New.
type Order int

const (
	// Natural keeps the enumeration order, optionally sorted as one list.
	Natural Order = iota + 1
	// FilesFirst visits the files of a directory before its subdirectories.
	FilesFirst
	// DirsFirst visits the subdirectories of a directory before its files.
	DirsFirst
)

var orderNames = map[Order]string{
	Natural:    "NATURAL",
	FilesFirst: "FILES_FIRST",
	DirsFirst:  "DIRS_FIRST",
}

var ordersByName = map[string]Order{
	"NATURAL":     Natural,
	"FILES_FIRST": FilesFirst,
	"DIRS_FIRST":  DirsFirst,
}

// Orders returns every order in declaration order.
func Orders() []Order {
	return []Order{Natural, FilesFirst, DirsFirst}
}

// ParseOrder looks an order up by its canonical name. An empty name yields
// the unset order without error.
func ParseOrder(name string) (Order, error) {
	if name == "" {
		return 0, nil
	}
	o, ok := ordersByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOrder, name)
	}
	return o, nil
}

// IsValidOrder reports whether name is empty or a canonical order name.
func IsValidOrder(name string) bool {
	if name == "" {
		return true
	}
	_, ok := ordersByName[name]
	return ok
}

func (o Order) String() string {
	if name, ok := orderNames[o]; ok {
		return name
	}
	if o == 0 {
		return ""
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// IsSet reports whether o is one of the canonical orders.
func (o Order) IsSet() bool {
	_, ok := orderNames[o]
	return ok
}

func (o Order) MarshalText() ([]byte, error) {
	if o != 0 && !o.IsSet() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOrder, int(o))
	}
	return []byte(o.String()), nil
}

func (o *Order) UnmarshalText(text []byte) error {
	parsed, err := ParseOrder(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// arrange returns children in visitation order. Only the base name takes
// part in sorting, compared byte-wise; the sort is stable so entries with
// equal names keep their enumeration order.
func arrange(children []fs.FileInfo, order Order, sortByName bool) []fs.FileInfo {
	byName := func(a, b fs.FileInfo) int {
		return strings.Compare(a.Name(), b.Name())
	}

	if order != FilesFirst && order != DirsFirst {
		out := slices.Clone(children)
		if sortByName {
			slices.SortStableFunc(out, byName)
		}
		return out
	}

	var dirs, files []fs.FileInfo
	for _, child := range children {
		if child.IsDir() {
			dirs = append(dirs, child)
		} else {
			files = append(files, child)
		}
	}
	if sortByName {
		slices.SortStableFunc(dirs, byName)
		slices.SortStableFunc(files, byName)
	}

	out := make([]fs.FileInfo, 0, len(children))
	if order == FilesFirst {
		out = append(out, files...)
		return append(out, dirs...)
	}
	out = append(out, dirs...)
	return append(out, files...)
}
