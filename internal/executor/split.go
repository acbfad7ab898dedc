package executor

import "bytes"

// ScanLines is a bufio.SplitFunc that ends a token at '\n' or '\r'. Progress
// printers rewrite their line with a bare carriage return.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
