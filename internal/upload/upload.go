// Package upload selects the program streamed to the device.
package upload

import (
	"fmt"
	"io"
	"os"
)

// StdinToken selects standard input instead of a file.
const StdinToken = "-"

// SourceError reports a payload that cannot be read. It is raised before
// any device interaction.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("cannot read %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Source is an open payload.
type Source struct {
	r      io.Reader
	closer io.Closer
	name   string
	label  string
}

// Open selects the payload named by name: StdinToken maps to stdin, any other
// value is a file path opened for reading.
func Open(name string, stdin io.Reader) (*Source, error) {
	if name == StdinToken {
		return &Source{r: stdin, name: "stdin", label: "Streaming stdin"}, nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, &SourceError{Path: name, Err: err}
	}

	// os.Open succeeds on directories; fail here rather than mid-upload
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		err = fmt.Errorf("is a directory")
	}
	if err != nil {
		f.Close()
		return nil, &SourceError{Path: name, Err: err}
	}

	return &Source{r: f, closer: f, name: name, label: "Sending file"}, nil
}

func (s *Source) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Label describes the transfer in status output.
func (s *Source) Label() string {
	return s.label
}

// Name returns the file path, or "stdin".
func (s *Source) Name() string {
	return s.name
}

// Close closes the underlying file. Standard input is left open.
func (s *Source) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
