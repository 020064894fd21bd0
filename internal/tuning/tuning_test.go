package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.PowDifficultyBits <= 0 || d.PowReward == 0 {
		t.Fatalf("bad pow defaults: %+v", d)
	}
	if d.Costs.CreateRoom == 0 || d.Costs.PublicMessage == 0 {
		t.Fatalf("bad cost defaults: %+v", d.Costs)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	body := []byte(`
protocol_version: "1.0"
pow_difficulty_bits: 12
pow_reward: 250
costs:
  create_room: 75
  rename_user: 5
  public_message: 2
snapshot_every_events: 500
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.PowDifficultyBits != 12 || got.PowReward != 250 {
		t.Fatalf("pow = %+v", got)
	}
	if got.Costs.CreateRoom != 75 || got.Costs.RenameUser != 5 || got.Costs.PublicMessage != 2 {
		t.Fatalf("costs = %+v", got.Costs)
	}
	if got.SnapshotEveryEvents != 500 {
		t.Fatalf("snapshot interval = %d", got.SnapshotEveryEvents)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("got %v, want not-exist", err)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
