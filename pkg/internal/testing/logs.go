// Package testing holds helpers shared by package tests
package testing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
)

// DecodeLogLines parses every JSON log line written to a buffer
func DecodeLogLines(tb testing.TB, buffer *bytes.Buffer) []map[string]interface{} {
	tb.Helper()
	var lines []map[string]interface{}
	scanner := bufio.NewScanner(buffer)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		line := map[string]interface{}{}
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			tb.Fatalf("Not a JSON log line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, line)
	}
	return lines
}
