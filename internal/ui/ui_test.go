package ui

import (
	"bytes"
	"testing"
)

func TestPrinterNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)

	p.Success("daemon started on port %d", 7654)
	p.Warn("already stopped")
	p.Error("boom")
	p.Info("note")
	p.Dim("Plist: %s", "/tmp/x.plist")
	p.Heading("Daemon")
	p.Println("raw")

	want := "✓ daemon started on port 7654\n" +
		"! already stopped\n" +
		"✗ boom\n" +
		"i note\n" +
		"Plist: /tmp/x.plist\n" +
		"\nDaemon\n" +
		"raw\n"
	if got := buf.String(); got != want {
		t.Errorf("output =\n%q\nwant\n%q", got, want)
	}
}

func TestPlainNeverStyles(t *testing.T) {
	var buf bytes.Buffer
	p := Plain(&buf)
	p.Success("ok")
	if bytes.Contains(buf.Bytes(), []byte("\x1b[")) {
		t.Errorf("plain printer emitted escape codes: %q", buf.String())
	}
	if p.Writer() != &buf {
		t.Error("Writer does not return destination")
	}
}
