package badblocks

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("bbf/badblocks")

// DefaultPath returns the conventional bad-block file name for a device
// identity token: badblocks.<token> in the working directory.
func DefaultPath(token string) string {
	return "badblocks." + token
}

// Load reads a bad-block file: one decimal block address per line. Blank
// lines and '#' comments are skipped. A missing file is the caller's
// recoverable condition; the error is returned as-is for them to report.
func Load(path string) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var addrs []uint64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad block address %q: %w", path, line, s, err)
		}
		addrs = append(addrs, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	log.Debugw("loaded bad blocks", "path", path, "count", len(addrs))
	return addrs, nil
}

// Save writes the list to path, replacing any previous contents. The write
// goes through a temp file and rename so an interrupted save never leaves a
// truncated list behind.
func Save(path string, addrs []uint64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, a := range addrs {
		if _, err := fmt.Fprintln(w, a); err != nil {
			tmp.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
