package internal

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	destLogger := log.New(&buf, "", 0)
	errorFilterWriter := &ErrorLogFilter{Unwrap: destLogger}
	testErrorLogger := log.New(errorFilterWriter, "", 0)

	suppressedMessage := "http: proxy error: context canceled"
	testErrorLogger.Println(suppressedMessage)

	if buf.Len() != 0 {
		t.Errorf("Suppressed message was written to output. Output: %q", buf.String())
	}
	buf.Reset()

	allowedMessage := "http: another error occurred"
	testErrorLogger.Println(allowedMessage)

	output := buf.String()
	if !strings.Contains(output, allowedMessage) {
		t.Errorf("Allowed message was not written to output. Output: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Allowed message output is missing newline. Output: %q", output)
	}
}

func TestSeedDeterminism(t *testing.T) {
	if Seed("ch-1234") != Seed("ch-1234") {
		t.Error("same input must derive the same seed")
	}

	if Seed("ch-1234") == Seed("ch-1235") {
		t.Error("different inputs should derive different seeds")
	}
}
