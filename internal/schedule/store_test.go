package schedule

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const nightlyYAML = `id: TS-0001
task: backup_database
cron: "0 3 * * *"
description: nightly backup
`

func TestStore_Load(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	writeFile(t, dir, "nightly.yaml", nightlyYAML)
	writeFile(t, dir, "notes.txt", "not a schedule")
	store := NewStore(dir)

	// Act
	d, err := store.Load("TS-0001")

	// Assert
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d.Task != "backup_database" {
		t.Errorf("Task = %q, want %q", d.Task, "backup_database")
	}
	if d.Cron != "0 3 * * *" {
		t.Errorf("Cron = %q, want %q", d.Cron, "0 3 * * *")
	}
	if !d.IsEnabled() {
		t.Error("IsEnabled() = false, want true by default")
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	t.Run("missing directory", func(t *testing.T) {
		store := NewStore(filepath.Join(t.TempDir(), "nope"))
		_, err := store.Load("TS-1")
		if !IsNotFound(err) {
			t.Errorf("Load() error = %v, want NotFoundError", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "nightly.yaml", nightlyYAML)
		_, err := NewStore(dir).Load("TS-9")
		if !IsNotFound(err) {
			t.Errorf("Load() error = %v, want NotFoundError", err)
		}
	})

	t.Run("unknown id with parse errors", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "broken.yaml", "id: [")
		_, err := NewStore(dir).Load("TS-9")
		if err == nil || !strings.Contains(err.Error(), "parse errors") {
			t.Errorf("Load() error = %v, want parse error summary", err)
		}
	})
}

func TestStore_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", strings.Replace(nightlyYAML, "TS-0001", "TS-0002", 1))
	writeFile(t, dir, "a.yml", nightlyYAML)
	writeFile(t, dir, "bad.yaml", "id: TS-0003\ntask: x\ncron: nope\n")

	ids, err := NewStore(dir).List()

	if err == nil {
		t.Error("List() should report the invalid file")
	}
	if want := []string{"TS-0001", "TS-0002"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("List() = %v, want %v", ids, want)
	}
}

func TestStore_ListMissingDir(t *testing.T) {
	ids, err := NewStore(filepath.Join(t.TempDir(), "missing")).List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List() = %v, want empty", ids)
	}
}

func TestStore_SaveThenLoad(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "schedules"))
	disabled := false
	d := &Definition{ID: "TS-5", Task: "send_report", Cron: "*/5 * * * *", Enabled: &disabled}

	if err := store.Save(d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Load("TS-5")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}
}

func TestStore_Path(t *testing.T) {
	// Arrange
	store := NewStore(filepath.Join(t.TempDir(), "schedules"))
	if err := store.Save(&Definition{ID: "TS-6", Task: "cleanup", Cron: "0 3 * * *"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Act
	path, err := store.Path("TS-6")
	_, missingErr := store.Path("TS-7")

	// Assert
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if want := filepath.Join(store.Dir(), "TS-6.yaml"); path != want {
		t.Errorf("Path() = %q, want %q", path, want)
	}
	if !IsNotFound(missingErr) {
		t.Errorf("Path(missing) error = %v, want NotFoundError", missingErr)
	}
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"valid", Definition{ID: "TS-1", Task: "t", Cron: "* * * * *"}, false},
		{"six field cron", Definition{ID: "TS-1", Task: "t", Cron: "0 * * * * *"}, false},
		{"missing id", Definition{Task: "t", Cron: "* * * * *"}, true},
		{"bad id", Definition{ID: "TS 1", Task: "t", Cron: "* * * * *"}, true},
		{"missing task", Definition{ID: "TS-1", Cron: "* * * * *"}, true},
		{"short cron", Definition{ID: "TS-1", Task: "t", Cron: "* *"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
