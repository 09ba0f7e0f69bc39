package source

import (
	"bufio"
	"context"
	"io"
	"os"
)

const maxLineLength = 1024 * 1024

// FileSource re-reads the whole traffic log on every window
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string {
	return "file:" + s.path
}

func (s *FileSource) Open(ctx context.Context) (Stream, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, unavailable(s.Name(), err)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	return &fileStream{name: s.Name(), file: f, scanner: scanner}, nil
}

func (s *FileSource) Close() error {
	return nil
}

type fileStream struct {
	name    string
	file    *os.File
	scanner *bufio.Scanner
}

func (s *fileStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", unavailable(s.name, err)
	}
	return "", io.EOF
}

func (s *fileStream) Close() error {
	return s.file.Close()
}
