package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Anti-abuse proof-of-work: required leading zero bits of the proof
	// hash and the balance credited per accepted proof.
	PowDifficultyBits int    `yaml:"pow_difficulty_bits"`
	PowReward         uint64 `yaml:"pow_reward"`

	Costs Costs `yaml:"costs"`

	SnapshotEveryEvents int `yaml:"snapshot_every_events"`
}

// Costs are the balance debits of the gated actions.
type Costs struct {
	CreateRoom    uint64 `yaml:"create_room"`
	RenameUser    uint64 `yaml:"rename_user"`
	PublicMessage uint64 `yaml:"public_message"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:   "1.0",
		PowDifficultyBits: 16,
		PowReward:         100,
		Costs: Costs{
			CreateRoom:    50,
			RenameUser:    10,
			PublicMessage: 1,
		},
		SnapshotEveryEvents: 10000,
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
