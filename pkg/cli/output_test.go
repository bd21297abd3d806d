package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	err := Output(sample{Name: "clip", Count: 3}, OutputOptions{
		Format: FormatJSON,
		Writer: &buf,
	})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "clip"`) {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestOutputDefaultsToYAML(t *testing.T) {
	var buf bytes.Buffer
	err := Output(sample{Name: "clip", Count: 3}, OutputOptions{Writer: &buf})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(buf.String(), "name: clip") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestOutputRawBytes(t *testing.T) {
	var buf bytes.Buffer
	err := Output([]byte{1, 2, 3}, OutputOptions{Format: FormatRaw, Writer: &buf})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3}) {
		t.Fatalf("output = %v", buf.Bytes())
	}
}

func TestOutputToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	err := Output(sample{Name: "x"}, OutputOptions{Format: FormatJSON, File: path})
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), `"name": "x"`) {
		t.Fatalf("file = %q", data)
	}
}

func TestOutputUnsupportedFormat(t *testing.T) {
	if err := Output("x", OutputOptions{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseRequestByExtension(t *testing.T) {
	var v sample
	if err := ParseRequest([]byte("name: a\ncount: 1\n"), "req.yaml", &v); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if v.Name != "a" || v.Count != 1 {
		t.Fatalf("parsed = %+v", v)
	}

	v = sample{}
	if err := ParseRequest([]byte(`{"name":"b","count":2}`), "req.json", &v); err != nil {
		t.Fatalf("json: %v", err)
	}
	if v.Name != "b" || v.Count != 2 {
		t.Fatalf("parsed = %+v", v)
	}

	// No extension: YAML first, JSON fallback. JSON is a YAML subset, so
	// both shapes land on the YAML path.
	v = sample{}
	if err := ParseRequest([]byte("name: c"), "reqfile", &v); err != nil {
		t.Fatalf("extensionless: %v", err)
	}
	if v.Name != "c" {
		t.Fatalf("parsed = %+v", v)
	}
}

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req.yaml")
	if err := os.WriteFile(path, []byte("name: d\ncount: 4\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var v sample
	if err := LoadRequest(path, &v); err != nil {
		t.Fatalf("LoadRequest: %v", err)
	}
	if v.Name != "d" || v.Count != 4 {
		t.Fatalf("parsed = %+v", v)
	}

	if err := LoadRequest(filepath.Join(t.TempDir(), "missing.yaml"), &v); err == nil {
		t.Fatal("expected error for missing file")
	}
}
