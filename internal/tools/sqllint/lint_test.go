package main

import (
	"strings"
	"testing"
)

const goodSource = "package q\n\n" +
	"const QOne = `--sql 11111111-2222-4333-8444-555555555555\nselect 1`\n" +
	"const QTwo = `--sql 66666666-7777-4888-9999-aaaaaaaaaaaa\nupdate t set x = 1`\n" +
	"const Label = \"selected items\"\n"

func TestLintSourceAcceptsMarkedQueries(t *testing.T) {
	l := newLinter()
	if err := l.lintSource("q.go", []byte(goodSource)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.violations) != 0 {
		t.Fatalf("unexpected violations: %v", l.violations)
	}
	if l.checked != 2 {
		t.Fatalf("checked = %d, want 2", l.checked)
	}
}

func TestLintSourceReportsProblems(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing marker",
			src:  "package q\nconst QBare = `select * from users`\n",
			want: "missing or invalid",
		},
		{
			name: "malformed marker",
			src:  "package q\nconst QBad = `--sql not-a-uuid\ndelete from users`\n",
			want: "missing or invalid",
		},
		{
			name: "reused marker",
			src: "package q\n" +
				"const QA = `--sql 11111111-2222-4333-8444-555555555555\nselect 1`\n" +
				"const QB = `--sql 11111111-2222-4333-8444-555555555555\nselect 2`\n",
			want: "already used by QA",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newLinter()
			if err := l.lintSource("q.go", []byte(tc.src)); err != nil {
				t.Fatalf("lintSource: %v", err)
			}
			if len(l.violations) != 1 {
				t.Fatalf("violations = %v, want exactly one", l.violations)
			}
			if got := l.violations[0].String(); !strings.Contains(got, tc.want) {
				t.Fatalf("violation = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLintSourceIgnoresTestFiles(t *testing.T) {
	l := newLinter()
	if err := l.lintSource("q_test.go", []byte("package q\nconst Q = `select 1`\n")); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.violations) != 0 || l.checked != 0 {
		t.Fatalf("test files should be skipped: %+v", l)
	}
}

func TestSkipDir(t *testing.T) {
	for _, name := range []string{".git", "_scratch", "vendor", "testdata"} {
		if !skipDir(name) {
			t.Fatalf("skipDir(%q) = false", name)
		}
	}
	if skipDir("sqlinline") {
		t.Fatal("skipDir(sqlinline) = true")
	}
}
