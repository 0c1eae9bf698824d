// Package vocab loads word lists used to seed and exercise atom tables.
package vocab

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

//go:embed data/markup.txt
var markupFS embed.FS

var markup = sync.OnceValue(func() []string {
	file, err := markupFS.Open("data/markup.txt")
	if err != nil {
		panic(fmt.Sprintf("vocab: embedded markup list missing: %v", err))
	}
	defer file.Close()
	words, err := readWords(file, 0)
	if err != nil {
		panic(fmt.Sprintf("vocab: embedded markup list unreadable: %v", err))
	}
	return Dedupe(words)
})

// Markup returns the built-in HTML, SVG and MathML element and attribute
// names. The returned slice is shared and must not be modified.
func Markup() []string {
	return markup()
}

const (
	scannerBufferSize = 64 * 1024
	maxWordSize       = 1024 * 1024
	mmapThreshold     = 10 * 1024 * 1024
)

// Load reads a word list from path. Regular files above 10 MiB are memory
// mapped; anything else, or a failed mapping, is streamed.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocabulary: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat vocabulary: %w", err)
	}

	size := info.Size()
	if size > mmapThreshold && info.Mode().IsRegular() && size <= int64(^uint(0)>>1) {
		data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
		if err == nil {
			words, readErr := readWords(bytes.NewReader(data), int(size))
			_ = unix.Munmap(data)
			if readErr != nil {
				return nil, fmt.Errorf("reading vocabulary %s: %w", path, readErr)
			}
			return words, nil
		}
	}

	words, err := readWords(file, int(min(size, int64(^uint(0)>>1))))
	if err != nil {
		return nil, fmt.Errorf("reading vocabulary %s: %w", path, err)
	}
	return words, nil
}

// Read parses a word list from r: one word per line, surrounding space
// trimmed, blank lines and lines starting with '#' skipped.
func Read(r io.Reader) ([]string, error) {
	return readWords(r, 0)
}

func readWords(r io.Reader, sizeHint int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerBufferSize), maxWordSize)

	if sizeHint <= 0 {
		if statter, ok := r.(interface{ Stat() (fs.FileInfo, error) }); ok {
			if info, err := statter.Stat(); err == nil {
				sizeHint = int(info.Size())
			}
		}
	}
	words := make([]string, 0, max(256, sizeHint/8))

	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word == "" || strings.HasPrefix(word, "#") {
			continue
		}
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// Dedupe returns words with repeats removed, keeping first occurrences in
// their original order.
func Dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}
