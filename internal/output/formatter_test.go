package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
	}{
		{"text", FormatText},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"toon", FormatTOON},
		{"TOON", FormatTOON},
		{"", FormatText},
		{"yaml", FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseFormat(tt.input); got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewFormatterWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	f, err := NewFormatter(FormatJSON, path, true)
	if err != nil {
		t.Fatalf("NewFormatter() error: %v", err)
	}
	if f.Colored() {
		t.Error("colored should be false when writing to a file")
	}
	if err := f.Output(map[string]int{"verdicts": 1}); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"verdicts": 1`) {
		t.Errorf("file content = %q", data)
	}
}

func TestNewFormatterInvalidPath(t *testing.T) {
	if _, err := NewFormatter(FormatText, "/nonexistent/directory/file.txt", false); err == nil {
		t.Error("NewFormatter() should error for invalid path")
	}
}

func sampleTable() *Table {
	return NewTable("Verdicts",
		[]string{"Project", "p"},
		[][]string{{"ratis", "0.0247"}, {"ant", "0.8"}},
		[]string{"Evaluated", "2"},
		nil)
}

func TestTableRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleTable().RenderText(&buf, false); err != nil {
		t.Fatalf("RenderText() error: %v", err)
	}
	out := strings.ToLower(buf.String())
	for _, want := range []string{"verdicts", "========", "project", "ratis", "0.0247", "evaluated"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestTableRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	if err := sampleTable().RenderMarkdown(&buf); err != nil {
		t.Fatalf("RenderMarkdown() error: %v", err)
	}
	want := "## Verdicts\n\n| Project | p |\n| --- | --- |\n| ratis | 0.0247 |\n| ant | 0.8 |\n| Evaluated | 2 |\n\n"
	if buf.String() != want {
		t.Errorf("markdown = %q, want %q", buf.String(), want)
	}
}

func TestTableRenderData(t *testing.T) {
	rows, ok := sampleTable().RenderData().([]map[string]string)
	if !ok {
		t.Fatal("RenderData() without Data should return row maps")
	}
	if len(rows) != 2 || rows[0]["Project"] != "ratis" || rows[1]["p"] != "0.8" {
		t.Errorf("unexpected rows: %v", rows)
	}

	withData := NewTable("", []string{"a"}, nil, nil, []int{1, 2})
	if _, ok := withData.RenderData().([]int); !ok {
		t.Error("RenderData() should return Data when set")
	}
}

func TestFormatterOutputRenderable(t *testing.T) {
	report := &Report{
		Title: "Study",
		Sections: []Renderable{
			sampleTable(),
			&Section{Title: "Significant Decreases", Content: "ratis"},
		},
	}

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatText, []string{"Study\n=====", "PROJECT", "Significant Decreases\n---------------------", "ratis"}},
		{FormatMarkdown, []string{"# Study", "## Verdicts", "## Significant Decreases", "ratis"}},
		{FormatJSON, []string{`"title": "Study"`, `"sections"`}},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewWriterFormatter(tt.format, &buf).Output(report); err != nil {
				t.Fatalf("Output() error: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("%s output missing %q:\n%s", tt.format, want, buf.String())
				}
			}
		})
	}
}

func TestFormatterOutputTOON(t *testing.T) {
	report := &Report{
		Title:    "Study",
		Sections: []Renderable{sampleTable()},
		Data:     map[string]any{"project": "ratis", "significant": true},
	}

	var buf bytes.Buffer
	if err := NewWriterFormatter(FormatTOON, &buf).Output(report); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	for _, want := range []string{"project: ratis", "significant: true"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("toon output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestFormatterOutputRaw(t *testing.T) {
	data := map[string]any{"project": "ratis", "weeks": 8}

	var buf bytes.Buffer
	if err := NewWriterFormatter(FormatJSON, &buf).Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("JSON output is invalid: %v", err)
	}

	buf.Reset()
	if err := NewWriterFormatter(FormatMarkdown, &buf).Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "```json\n") || !strings.HasSuffix(buf.String(), "```\n") {
		t.Errorf("markdown raw output should be a fenced JSON block, got %q", buf.String())
	}

	buf.Reset()
	if err := NewWriterFormatter(FormatText, &buf).Output(data); err != nil {
		t.Fatalf("Output() error: %v", err)
	}
	if !strings.Contains(buf.String(), "project: ratis") {
		t.Errorf("text raw output should be TOON, got %q", buf.String())
	}
}

func TestFormatterMessages(t *testing.T) {
	var buf bytes.Buffer
	f := NewWriterFormatter(FormatText, &buf)

	f.Success("collected %d projects", 2)
	f.Warning("skipped %s", "poi")
	f.Error("failed")
	f.Info("done")

	want := "collected 2 projects\nWARNING: skipped poi\nERROR: failed\ndone\n"
	if buf.String() != want {
		t.Errorf("messages = %q, want %q", buf.String(), want)
	}
}
