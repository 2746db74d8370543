// Package emit renders command results as JSON to a stream or a file,
// with serialization and destination kept behind small interfaces so
// tests can substitute either.
package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

// FileWriter writes to Path, creating parent directories as needed.
type FileWriter struct {
	Path      string
	Overwrite bool
}

func (w FileWriter) Write(data []byte) error {
	if w.Path == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(w.Path); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(w.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(w.Path, data, 0644)
}

// StreamWriter writes to an io.Writer, newline-terminated.
type StreamWriter struct {
	Out io.Writer
}

func (w StreamWriter) Write(data []byte) error {
	_, err := w.Out.Write(append(data, '\n'))
	return err
}

// Write serializes data and hands it to the writer.
func Write(data any, s Serializer, w Writer) error {
	bytes, err := s.Marshal(data)
	if err != nil {
		return fmt.Errorf("emit: marshal: %w", err)
	}
	if err := w.Write(bytes); err != nil {
		return fmt.Errorf("emit: write: %w", err)
	}
	return nil
}

// JSON writes data as indented JSON to path, or to out when path is
// empty. The usual call site is a CLI command with an optional -o flag.
func JSON(data any, path string, out io.Writer) error {
	ser := JSONSerializer{Indent: "  "}
	if path == "" {
		return Write(data, ser, StreamWriter{Out: out})
	}
	return Write(data, ser, FileWriter{Path: path, Overwrite: true})
}
