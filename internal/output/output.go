// Package output writes cilscope analysis results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cilscope/internal/disasm"
	"cilscope/internal/metadata"
)

// WriteInfoJSON writes assembly information to info.json.
func WriteInfoJSON(dir string, info *metadata.Info) error {
	return writeJSON(filepath.Join(dir, "info.json"), info)
}

// WriteIL writes a method listing to asm/<name>.il.
// name may contain path separators (e.g., "Demo.Widget/Paint") for directory grouping.
func WriteIL(dir string, name string, il *disasm.MethodIL, annotators ...disasm.Annotator) error {
	path := filepath.Join(dir, "asm", name+".il")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}
	return os.WriteFile(path, []byte(il.Format(annotators...)), 0644)
}

// WriteBin writes the raw IL bytes of a method body to asm/<name>.bin.
func WriteBin(dir string, name string, data []byte) error {
	path := filepath.Join(dir, "asm", name+".bin")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// WriteText writes s to dir/name, creating parent directories.
func WriteText(dir, name, s string) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(s), 0644); err != nil {
		return "", fmt.Errorf("output: write %s: %w", path, err)
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

// JSONL writes one JSON record per line.
type JSONL struct {
	Path  string
	f     *os.File
	enc   *json.Encoder
	count int
}

// CreateJSONL creates dir/name for line-oriented records.
func CreateJSONL(dir, name string) (*JSONL, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create %s: %w", name, err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONL{Path: path, f: f, enc: enc}, nil
}

// Encode appends one record.
func (w *JSONL) Encode(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("output: write %s: %w", filepath.Base(w.Path), err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *JSONL) Count() int { return w.count }

// Close closes the underlying file.
func (w *JSONL) Close() error { return w.f.Close() }

// ReadJSONL reads a JSONL file into a slice of T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []T
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}
