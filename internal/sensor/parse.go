package sensor

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Record-log line prefixes. Capture files carry one measurement per line:
//
//	L <px> <py> <timestamp_us> [ground truth columns...]
//	R <rho> <phi> <rhodot> <timestamp_us> [ground truth columns...]
//
// Fields are tab or space separated. Trailing ground-truth columns from
// evaluation captures are tolerated and ignored.
const (
	directPrefix       = "L"
	rangeBearingPrefix = "R"
)

// ParseLine parses one measurement-log line into a canonical Measurement.
func ParseLine(line string) (Measurement, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Measurement{}, fmt.Errorf("empty measurement line")
	}

	var typ Type
	var nVals int
	switch fields[0] {
	case directPrefix:
		typ = Direct
		nVals = 2
	case rangeBearingPrefix:
		typ = RangeBearing
		nVals = 3
	default:
		return Measurement{}, fmt.Errorf("unknown sensor tag %q", fields[0])
	}

	if len(fields) < 1+nVals+1 {
		return Measurement{}, fmt.Errorf("%s line needs %d values and a timestamp, got %d fields", fields[0], nVals, len(fields))
	}

	values := make([]float64, nVals)
	for i := 0; i < nVals; i++ {
		v, err := strconv.ParseFloat(fields[1+i], 64)
		if err != nil {
			return Measurement{}, fmt.Errorf("invalid value %q: %w", fields[1+i], err)
		}
		values[i] = v
	}

	micros, err := strconv.ParseInt(fields[1+nVals], 10, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("invalid timestamp %q: %w", fields[1+nVals], err)
	}

	return Measurement{Type: typ, Micros: micros, Values: values}, nil
}

// ParseLog reads a whole measurement log. Blank lines and lines starting
// with '#' are skipped. A malformed line aborts the parse with its line
// number so bad captures fail loudly instead of silently thinning out.
func ParseLog(r io.Reader) ([]Measurement, error) {
	var out []Measurement
	scan := bufio.NewScanner(r)
	lineNo := 0
	for scan.Scan() {
		lineNo++
		line := strings.TrimSpace(scan.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, m)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read measurement log: %w", err)
	}
	return out, nil
}
