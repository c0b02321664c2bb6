package normalize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n
}

func TestNormalize(t *testing.T) {
	n := testNormalizer(t)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"numeric id", "/orders/482913", "/orders/:id"},
		{"small numeric id", "/orders/17", "/orders/:id"},
		{"uuid", "/users/3fa85f64-5717-4562-b3fc-2c963f66afa6", "/users/:id"},
		{"salesforce id 18", "/workorders/0WO1i000003COEnGAO/", "/workorders/:id/"},
		{"salesforce id 15", "/workorders/0WO1i000003COEn", "/workorders/:id"},
		{"project reference", "/projects/WO22VLD0", "/projects/:id"},
		{"offer number", "/offers/0608656-04", "/offers/:id"},
		{"offer extension", "/offers/0608656-04-AB", "/offers/:id"},
		{"fixed words kept", "/api/disposition/service/", "/api/disposition/service/"},
		{"mixed", "/api/orders/482913/items/17", "/api/orders/:id/items/:id"},
		{"query dropped", "/api/service/?hub=33", "/api/service/"},
		{"root", "/", "/"},
		{"empty", "", "/"},
		{"lowercase word not sfid", "/acceptanceprotocol/", "/acceptanceprotocol/"},
		{"uppercase word not sfid", "/PREDEFINEDOFFER", "/PREDEFINEDOFFER"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := n.Normalize(tc.path); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.path, got, tc.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := testNormalizer(t)

	paths := []string{
		"/orders/482913",
		"/users/3fa85f64-5717-4562-b3fc-2c963f66afa6",
		"/api/orders/482913/items/17?page=2",
		"/",
		"/api/disposition/service/",
	}
	for _, path := range paths {
		once := n.Normalize(path)
		twice := n.Normalize(once)
		if once != twice {
			t.Errorf("normalize not idempotent for %q: %q != %q", path, once, twice)
		}
	}
}

func TestNormalize_DistinctPrefixesStayDistinct(t *testing.T) {
	n := testNormalizer(t)

	users := n.Normalize("/users/3fa85f64-5717-4562-b3fc-2c963f66afa6")
	orders := n.Normalize("/orders/17")
	if users == orders {
		t.Errorf("templates must keep route prefixes distinct: %q == %q", users, orders)
	}
	if users != "/users/:id" {
		t.Errorf("users template = %q", users)
	}
	if orders != "/orders/:id" {
		t.Errorf("orders template = %q", orders)
	}
}

func TestNormalize_ExtraPatterns(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patterns.yml")
	content := "patterns:\n  - \"^inv_[0-9a-f]+$\"\n  - \"^[A-Z]{3}-[0-9]+$\"\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := New(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace), file)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := n.Normalize("/invoices/inv_deadbeef"); got != "/invoices/:id" {
		t.Errorf("configured pattern not applied: %q", got)
	}
	if got := n.Normalize("/tickets/ABC-4821"); got != "/tickets/:id" {
		t.Errorf("configured pattern not applied: %q", got)
	}
	if got := n.Normalize("/invoices/templates"); got != "/invoices/templates" {
		t.Errorf("fixed segment rewritten: %q", got)
	}
}

func TestNormalize_BadPatternsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patterns.yml")
	if err := os.WriteFile(file, []byte("patterns:\n  - \"([unclosed\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace), file); err == nil {
		t.Error("expected an error for an invalid pattern")
	}

	if _, err := New(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace), filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestReload_KeepsOldSetOnError(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patterns.yml")
	if err := os.WriteFile(file, []byte("patterns:\n  - \"^tok_[0-9]+$\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := New(pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace), file)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// Break the file, reload must fail and keep the previous set active.
	if err := os.WriteFile(file, []byte("patterns:\n  - \"([broken\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := n.Reload(); err == nil {
		t.Fatal("expected reload to fail")
	}
	if got := n.Normalize("/t/tok_123"); got != "/t/:id" {
		t.Errorf("old pattern set lost after failed reload: %q", got)
	}
}
