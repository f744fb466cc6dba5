package fixer

import (
	"strings"
	"testing"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

func TestApplyRule_IndentationExpandsTabs(t *testing.T) {
	for n := 0; n <= 5; n++ {
		line := strings.Repeat("\t", n) + "return x\n"
		desc, got := ApplyRule(pipeline.BugIndentation, pipeline.LangPython, line)
		if desc != IndentDescription {
			t.Errorf("desc = %q", desc)
		}
		want := strings.Repeat(" ", 4*n) + "return x\n"
		if got != want {
			t.Errorf("%d tabs: got %q, want %q", n, got, want)
		}
		if strings.Contains(got, "\t") {
			t.Errorf("%d tabs: tabs remain in %q", n, got)
		}
	}
}

func TestApplyRule_IndentationMixedWhitespace(t *testing.T) {
	_, got := ApplyRule(pipeline.BugIndentation, pipeline.LangPython, "  \t\tif x:\t# keep\n")
	if got != "          if x:\t# keep\n" {
		t.Errorf("got %q", got)
	}
}

func TestApplyRule_Idempotent(t *testing.T) {
	lines := []string{"\t\tx = 1\n", "import os\n", "    y\n", "", "import { a } from 'b'"}
	for _, bt := range []string{pipeline.BugIndentation, pipeline.BugImport, pipeline.BugLogic} {
		for _, lang := range []string{pipeline.LangPython, pipeline.LangTypeScript} {
			for _, line := range lines {
				_, once := ApplyRule(bt, lang, line)
				_, twice := ApplyRule(bt, lang, once)
				if once != twice {
					t.Errorf("%s/%s not idempotent on %q: %q then %q", bt, lang, line, once, twice)
				}
			}
		}
	}
}

func TestApplyRule_Import(t *testing.T) {
	tests := []struct {
		lang, line, want string
	}{
		{pipeline.LangPython, "import os  \n", "# import os  # removed unused import\n"},
		{pipeline.LangPython, "    from x import y\r\n", "#     from x import y  # removed unused import\r\n"},
		{pipeline.LangJavaScript, "const fs = require('fs');\n", "// const fs = require('fs');  // removed unused import\n"},
		{pipeline.LangTypeScript, "import { a } from 'b'", "// import { a } from 'b'  // removed unused import"},
		{pipeline.LangPython, "   \n", "   \n"},
	}
	for _, tt := range tests {
		desc, got := ApplyRule(pipeline.BugImport, tt.lang, tt.line)
		if desc != ImportDescription {
			t.Errorf("desc = %q", desc)
		}
		if got != tt.want {
			t.Errorf("ApplyRule(IMPORT, %s, %q) = %q, want %q", tt.lang, tt.line, got, tt.want)
		}
	}
}

func TestApplyRule_NoRule(t *testing.T) {
	for _, bt := range []string{pipeline.BugLogic, pipeline.BugSyntax, pipeline.BugTypeError, pipeline.BugLinting} {
		desc, got := ApplyRule(bt, pipeline.LangPython, "\tx\n")
		if desc != DefaultDescription || got != "\tx\n" {
			t.Errorf("%s: got (%q, %q)", bt, desc, got)
		}
	}
}
