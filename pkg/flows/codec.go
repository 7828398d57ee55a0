package flows

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Read parses a whitespace-delimited flow file:
// station, year and twelve monthly flows per line. Blank lines are ignored.
func Read(r io.Reader) (Table, error) {
	var t Table

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 14 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want 14", ErrData, line, len(fields))
		}

		nums := make([]int, len(fields))
		for i, f := range fields {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d field %d: %v", ErrData, line, i+1, err)
			}
			nums[i] = v
		}

		rec := Record{Station: Station(nums[0]), Year: nums[1]}
		copy(rec.Flows[:], nums[2:])
		t = append(t, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}

	return t, nil
}

// Write serializes a table in the fixed-width flow file layout: station in
// three columns, a space, year in four columns and twelve flows in six
// columns each, every line newline-terminated.
func Write(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	for _, rec := range t {
		fmt.Fprintf(bw, "%3d %4d", rec.Station, rec.Year)
		for _, v := range rec.Flows {
			fmt.Fprintf(bw, "%6d", v)
		}
		bw.WriteByte('\n')
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write flow file: %w", err)
	}
	return nil
}

// ReadFile reads and parses a flow file from disk.
func ReadFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteFile writes a table to path.tmp and renames it over path, so readers
// never see a partially written file.
func WriteFile(path string, t Table) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Write(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
