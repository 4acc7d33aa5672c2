package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Store keeps catalogued records together with the set of files that have
// already been processed, so unchanged files are not read twice.
type Store struct {
	storage *BadgerStorage
}

// StoreStats summarises the catalog contents
type StoreStats struct {
	Records   int `json:"records" yaml:"records"`
	Sources   int `json:"sources" yaml:"sources"`
	Processed int `json:"processed" yaml:"processed"`
}

func NewStore(storage *BadgerStorage) *Store {
	return &Store{storage: storage}
}

// Replace swaps the records of source for records and marks source as
// processed at modTime, in one transaction.
func (s *Store) Replace(ctx context.Context, source string, modTime time.Time, records []Record) error {
	return s.storage.Update(ctx, func(txn *Txn) error {
		if err := txn.DeletePrefix(SourcePrefix(source)); err != nil {
			return err
		}
		for _, rec := range records {
			value, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to encode record %s: %w", rec.Name, err)
			}
			if err := txn.Set(EntryKey(source, rec.Name), value); err != nil {
				return err
			}
		}
		return txn.Set(ProcessedKey(source), encodeModTime(modTime))
	})
}

// IsProcessed reports whether path was processed when it had modTime.
func (s *Store) IsProcessed(ctx context.Context, path string, modTime time.Time) (bool, error) {
	value, err := s.storage.Get(ctx, ProcessedKey(path))
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	seen, err := decodeModTime(value)
	if err != nil {
		return false, nil
	}
	return seen.Equal(modTime), nil
}

// Processed lists every processed path in key order.
func (s *Store) Processed(ctx context.Context) ([]string, error) {
	var paths []string
	err := s.storage.Scan(ctx, []byte(PrefixProcessed), func(key, _ []byte) error {
		paths = append(paths, strings.TrimPrefix(string(key), PrefixProcessed))
		return nil
	})
	return paths, err
}

// Records returns the records of source, or every record when source is empty.
func (s *Store) Records(ctx context.Context, source string) ([]Record, error) {
	prefix := []byte(PrefixEntry)
	if source != "" {
		prefix = SourcePrefix(source)
	}

	var records []Record
	err := s.storage.Scan(ctx, prefix, func(key, value []byte) error {
		var rec Record
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("failed to decode record %q: %w", key, err)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// Find returns the records whose base name equals name.
func (s *Store) Find(ctx context.Context, name string) ([]Record, error) {
	all, err := s.Records(ctx, "")
	if err != nil {
		return nil, err
	}

	var found []Record
	for _, rec := range all {
		if path.Base(rec.Name) == name {
			found = append(found, rec)
		}
	}
	return found, nil
}

// Forget removes p and everything catalogued below it.
func (s *Store) Forget(ctx context.Context, p string) error {
	below := p + string(filepath.Separator)
	return s.storage.Update(ctx, func(txn *Txn) error {
		for _, prefix := range [][]byte{
			SourcePrefix(p),
			[]byte(PrefixEntry + below),
			[]byte(PrefixProcessed + below),
		} {
			if err := txn.DeletePrefix(prefix); err != nil {
				return err
			}
		}
		return txn.Delete(ProcessedKey(p))
	})
}

// Clear removes all catalog data.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.DropPrefix(ctx, []byte(PrefixEntry)); err != nil {
		return err
	}
	return s.storage.DropPrefix(ctx, []byte(PrefixProcessed))
}

func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	var stats StoreStats
	sources := make(map[string]bool)

	err := s.storage.Scan(ctx, []byte(PrefixEntry), func(key, _ []byte) error {
		stats.Records++
		source, _, _ := strings.Cut(strings.TrimPrefix(string(key), PrefixEntry), nameSeparator)
		sources[source] = true
		return nil
	})
	if err != nil {
		return stats, err
	}
	stats.Sources = len(sources)

	err = s.storage.Scan(ctx, []byte(PrefixProcessed), func(_, _ []byte) error {
		stats.Processed++
		return nil
	})
	return stats, err
}

func (s *Store) Close() error {
	return s.storage.Close()
}
