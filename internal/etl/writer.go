package etl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"
)

// recordWriter appends verdicts to an output file
type recordWriter interface {
	Write(records []OutputRecord) error
	Close() error
}

// newRecordWriter picks Parquet for a .parquet path and JSONL otherwise
func newRecordWriter(path string) (recordWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	if DetectFileFormat(path) == FormatParquet {
		return &parquetWriter{
			file:   file,
			writer: parquet.NewGenericWriter[OutputRecord](file),
		}, nil
	}

	buf := bufio.NewWriter(file)
	return &jsonlWriter{file: file, buf: buf, encoder: json.NewEncoder(buf)}, nil
}

type jsonlWriter struct {
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
}

func (w *jsonlWriter) Write(records []OutputRecord) error {
	for i := range records {
		if err := w.encoder.Encode(&records[i]); err != nil {
			return err
		}
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.GenericWriter[OutputRecord]
}

func (w *parquetWriter) Write(records []OutputRecord) error {
	_, err := w.writer.Write(records)
	return err
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
