package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type record struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	f := New[record](filepath.Join(t.TempDir(), "nope.json"))

	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestSaveLoad_JSONPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "records.json")
	f := New[record](path)

	in := []record{{ID: 3, Name: "c"}, {ID: 1, Name: "a"}, {ID: 2, Name: "<b>"}}
	if err := f.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), `"name": "<b>"`) {
		t.Errorf("expected indented, unescaped JSON, got:\n%s", raw)
	}

	out, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 3 || out[0].ID != 3 || out[1].ID != 1 || out[2].Name != "<b>" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestSaveLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	f := New[record](path)

	if err := f.Save([]record{{ID: 7, Name: "seven"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "name: seven") {
		t.Errorf("expected YAML output, got:\n%s", raw)
	}

	out, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != 1 || out[0].ID != 7 {
		t.Errorf("got %+v", out)
	}
}

func TestSave_NilWritesEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	f := New[record](path)
	if err := f.Save(nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("got %q, want []", raw)
	}
}

func TestLoad_CorruptFileIsPersistError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New[record](path).Load()
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("err = %v, want ErrPersist", err)
	}
}

func TestSave_UnwritableDirIsPersistError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	// Parent "directory" is a regular file, so MkdirAll fails.
	f := New[record](filepath.Join(blocker, "records.json"))
	if err := f.Save([]record{{ID: 1}}); !errors.Is(err, ErrPersist) {
		t.Fatalf("err = %v, want ErrPersist", err)
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("YAML") != FormatYAML || ParseFormat("yml") != FormatYAML {
		t.Error("yaml variants not recognised")
	}
	if ParseFormat("") != FormatJSON || ParseFormat("toml") != FormatJSON {
		t.Error("unknown formats should fall back to json")
	}
	if FormatYAML.Ext() != ".yaml" || FormatJSON.Ext() != ".json" {
		t.Error("unexpected extensions")
	}
}
