package migrations

import (
	"strings"
	"testing"
)

func TestLoadOrdersVersions(t *testing.T) {
	got, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Version >= got[i].Version {
			t.Fatalf("migrations out of order: %s before %s", got[i-1].Version, got[i].Version)
		}
	}
	if got[0].Version != "0001_init" {
		t.Fatalf("first migration = %s", got[0].Version)
	}
}

func TestActiveDedupeIndexIsPartial(t *testing.T) {
	got, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	var schema strings.Builder
	for _, m := range got {
		schema.WriteString(m.SQL)
	}
	text := schema.String()
	for _, want := range []string{
		"video_jobs_active_dedupe_idx",
		"where status in ('QUEUED', 'RUNNING')",
		"create extension if not exists pgcrypto",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}
