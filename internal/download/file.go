package download

import (
	"errors"
	"io/fs"
	"os"
)

// File is a downloaded clip on local disk.
type File struct {
	// Path is the absolute location of the temporary file.
	Path string

	// Name is the base name of the temporary file.
	Name string

	// Size is the number of bytes written.
	Size int64
}

// Open opens the clip for reading.
func (f *File) Open() (*os.File, error) {
	return os.Open(f.Path)
}

// Remove deletes the clip from disk. It is safe to call more than once and
// on a nil File.
func (f *File) Remove() error {
	if f == nil || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
