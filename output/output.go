package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourusername/atomcache/config"
)

// Record describes one interned string as seen by a table walk.
type Record struct {
	Content string `json:"content"`
	Hash    string `json:"hash"`
	Bucket  int    `json:"bucket"`
	Refs    int32  `json:"refs"`
	Static  bool   `json:"static"`
}

// FormatHash renders a hash the way records carry it.
func FormatHash(hash uint32) string {
	return fmt.Sprintf("%08x", hash)
}

// Writer serialises records to stdout or a file in a configured format.
type Writer struct {
	format        config.Format
	closer        io.Closer
	buffered      *bufio.Writer
	csvWriter     *csv.Writer
	csvHeaderSent bool
	encoder       *json.Encoder
}

// NewWriter creates a writer configured according to cfg. Live output goes
// to stdout.
func NewWriter(cfg *config.Config, stdout io.Writer) (*Writer, error) {
	var (
		dest   io.Writer = stdout
		closer io.Closer
	)

	if !cfg.LiveOutput() {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil && !os.IsExist(err) {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
		file, err := os.Create(cfg.OutputPath)
		if err != nil {
			return nil, fmt.Errorf("opening output file: %w", err)
		}
		dest = file
		closer = file
	}

	writer := &Writer{format: cfg.Format, closer: closer, buffered: bufio.NewWriter(dest)}

	switch cfg.Format {
	case config.FormatJSON, "":
		writer.format = config.FormatJSON
		writer.encoder = json.NewEncoder(writer.buffered)
		writer.encoder.SetEscapeHTML(false)
		if cfg.JSONPretty {
			writer.encoder.SetIndent("", "  ")
		}
	case config.FormatCSV:
		writer.csvWriter = csv.NewWriter(writer.buffered)
	case config.FormatTXT:
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}

	return writer, nil
}

// WriteRecord writes a single record using the configured format.
func (w *Writer) WriteRecord(record Record) error {
	switch w.format {
	case config.FormatJSON:
		return w.encoder.Encode(record)
	case config.FormatCSV:
		return w.writeCSVRecord(record)
	default:
		return w.writeTXTRecord(record)
	}
}

func (w *Writer) writeCSVRecord(record Record) error {
	if !w.csvHeaderSent {
		if err := w.csvWriter.Write([]string{"content", "hash", "bucket", "refs", "static"}); err != nil {
			return err
		}
		w.csvHeaderSent = true
	}
	row := []string{
		record.Content,
		record.Hash,
		strconv.Itoa(record.Bucket),
		strconv.FormatInt(int64(record.Refs), 10),
		strconv.FormatBool(record.Static),
	}
	return w.csvWriter.Write(row)
}

func (w *Writer) writeTXTRecord(record Record) error {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Content: %s\n", record.Content)
	fmt.Fprintf(&builder, "Hash: %s\n", record.Hash)
	if record.Static {
		builder.WriteString("Kind: static\n")
	} else {
		fmt.Fprintf(&builder, "Kind: dynamic (bucket %d, refs %d)\n", record.Bucket, record.Refs)
	}
	builder.WriteString("\n")
	_, err := w.buffered.WriteString(builder.String())
	return err
}

// Close flushes any buffered data and closes owned file handles.
func (w *Writer) Close() error {
	if w.csvWriter != nil {
		w.csvWriter.Flush()
		if err := w.csvWriter.Error(); err != nil {
			return err
		}
	}
	if err := w.buffered.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
