package mclog

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxLineBytes bounds a single log line; modded servers can emit huge
// stack traces on one line.
const maxLineBytes = 1 << 20

// Sources lists candidate log files in dir: *.log and *.log.gz, excluding
// debug/diagnostic streams. Results are sorted by name so rotated files come
// back in a stable order.
func Sources(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".log") && !strings.HasSuffix(lower, ".log.gz") {
			continue
		}
		if strings.Contains(lower, "debug") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// forEachLine streams path line by line, transparently decompressing .gz
// sources. The callback sees lines in file order.
func forEachLine(path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		fn(sc.Text())
	}
	return sc.Err()
}
