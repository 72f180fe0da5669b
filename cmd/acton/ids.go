package main

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/acton"
)

// readIDs parses one instance id per line. Blank lines and lines starting
// with '#' are skipped.
func readIDs(r io.Reader) ([]uint64, error) {
	var ids []uint64
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, acton.Configurationf("line %d: invalid instance id %q", line, s)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

// openInput returns path, or cmd's input stream when path is empty.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// openOutput creates path, or returns cmd's output stream when path is
// empty. The returned close func flushes and syncs the file.
func openOutput(cmd *cobra.Command, path string) (*bufio.Writer, func() error, error) {
	if path == "" {
		w := bufio.NewWriter(cmd.OutOrStdout())
		return w, w.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	w := bufio.NewWriter(f)
	return w, func() error {
		if err := w.Flush(); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}, nil
}
