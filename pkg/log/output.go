package log

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// WriterOutput writes formatted entries to an io.Writer.
type WriterOutput struct {
	w io.Writer
}

// NewWriterOutput wraps w. Close is a no-op.
func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{w: w} }

func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.w.Write(formatted)
	return err
}

func (o *WriterOutput) Close() error { return nil }

// ConsoleOutput writes to stderr.
type ConsoleOutput struct {
	WriterOutput
}

// NewConsoleOutput returns an output bound to os.Stderr.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{WriterOutput{w: os.Stderr}}
}

// NullOutput discards everything.
type NullOutput struct{}

func (NullOutput) Write(*Entry, []byte) error { return nil }
func (NullOutput) Close() error               { return nil }

// FileOptions controls rotation of a FileOutput.
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileOutput appends to a size-rotated file.
type FileOutput struct {
	lj *lumberjack.Logger
}

// NewFileOutput opens (lazily) a rotating log file at path.
func NewFileOutput(path string, opts FileOptions) *FileOutput {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	return &FileOutput{lj: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
		LocalTime:  true,
	}}
}

func (o *FileOutput) Write(_ *Entry, formatted []byte) error {
	_, err := o.lj.Write(formatted)
	return err
}

func (o *FileOutput) Close() error { return o.lj.Close() }
