package multispace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	goodRoot   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	goodAuthor = "02bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeSpaces(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spaces.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSpaces(t *testing.T) {
	path := writeSpaces(t, `spaces:
  - title: Test Space
    root_block: "`+goodRoot+`"
    author: "`+goodAuthor+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Spaces) != 1 || cfg.Spaces[0].Title != "Test Space" {
		t.Fatalf("cfg = %+v", cfg)
	}

	sc, err := cfg.Spaces[0].SpaceConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.RootBlock.Hex() != goodRoot || sc.Author.Hex() != goodAuthor {
		t.Fatalf("space config = %+v", sc)
	}
}

func TestLoadSpacesRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty", "spaces: []\n", "no spaces"},
		{"no title", "spaces:\n  - root_block: \"" + goodRoot + "\"\n    author: \"" + goodAuthor + "\"\n", "no title"},
		{"bad root", "spaces:\n  - title: X\n    root_block: \"zzz\"\n    author: \"" + goodAuthor + "\"\n", "X"},
		{"bad author", "spaces:\n  - title: X\n    root_block: \"" + goodRoot + "\"\n    author: \"nope\"\n", "X"},
		{"duplicate root", "spaces:\n  - title: A\n    root_block: \"" + goodRoot + "\"\n    author: \"" + goodAuthor + "\"\n  - title: B\n    root_block: \"" + goodRoot + "\"\n    author: \"" + goodAuthor + "\"\n", "duplicate"},
		{"not yaml", "{{{{", "spaces.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeSpaces(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoadSpacesMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
}
