package record

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// headerLine matches "# key = value" comment lines of the row encoding.
var headerLine = regexp.MustCompile(`^#\s*([^\s=]+)\s*=\s*(.*?)\s*$`)

// ScanHeader reads "# key = value" lines from the top of a row-encoded
// stream (or from a Generate console echo) and returns the Header they
// describe. Scanning stops at the delimiter or the first non-comment line.
// Unknown keys are ignored; a missing key leaves the zero value.
func ScanHeader(r io.Reader) (Header, error) {
	var h Header
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if IsDelimiter(line) || !strings.HasPrefix(line, "#") {
			break
		}
		m := headerLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, value := m[1], m[2]
		switch key {
		case "file":
			h.File = strings.Trim(value, `"`)
		case "samples":
			n, err := strconv.Atoi(value)
			if err != nil {
				return h, fmt.Errorf("parsing samples %q: %w", value, err)
			}
			h.Samples = n
		case "randomize":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return h, fmt.Errorf("parsing randomize %q: %w", value, err)
			}
			h.Randomize = n
		}
	}
	if err := scanner.Err(); err != nil {
		return h, fmt.Errorf("scanning header: %w", err)
	}
	return h, nil
}
