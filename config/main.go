// Package config loads network descriptions: the switches, dead ends, tracks, and trains of a System.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Network struct {
	Switches []Switch  `json:"switches" yaml:"switches"`
	DeadEnds []DeadEnd `json:"deadends" yaml:"deadends"`
	Tracks   []Track   `json:"tracks" yaml:"tracks"`
	Trains   []Train   `json:"trains" yaml:"trains"`
}

type Switch struct {
	Tag string `json:"tag" yaml:"tag"`
	// State is false for through and true for diverging.
	State bool `json:"state" yaml:"state"`
}

type DeadEnd struct {
	Tag string `json:"tag" yaml:"tag"`
}

// BranchRef names a branch by its node's tag.
// Branch is one of approach, through, or diverging for switches, and empty for dead ends.
type BranchRef struct {
	Node   string `json:"node" yaml:"node"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

func (r BranchRef) String() string {
	if r.Branch == "" {
		return r.Node
	}
	return r.Node + "_" + r.Branch
}

type Track struct {
	From   BranchRef `json:"from_" yaml:"from_"`
	To     BranchRef `json:"to" yaml:"to"`
	Length float64   `json:"length" yaml:"length"`
}

type trackPlain Track

// mergeFrom accepts "from" as well as "from_".
func (t *Track) mergeFrom(from *BranchRef) error {
	if from == nil {
		return nil
	}
	if t.From != (BranchRef{}) {
		return errors.New("both from and from_ given")
	}
	t.From = *from
	return nil
}

func (t *Track) UnmarshalJSON(data []byte) error {
	var t2 struct {
		trackPlain
		From2 *BranchRef `json:"from"`
	}
	err := json.Unmarshal(data, &t2)
	if err != nil {
		return err
	}
	*t = Track(t2.trackPlain)
	return t.mergeFrom(t2.From2)
}

func (t *Track) UnmarshalYAML(value *yaml.Node) error {
	var t2 struct {
		trackPlain `yaml:",inline"`
		From2      *BranchRef `yaml:"from"`
	}
	err := value.Decode(&t2)
	if err != nil {
		return err
	}
	*t = Track(t2.trackPlain)
	return t.mergeFrom(t2.From2)
}

type Train struct {
	Tag    string  `json:"tag" yaml:"tag"`
	Speed  float64 `json:"speed" yaml:"speed"`
	Length float64 `json:"length" yaml:"length"`
	// HeadDistance is how far the head is from HeadBranch's end, along its track.
	HeadDistance float64   `json:"head_distance" yaml:"head_distance"`
	HeadBranch   BranchRef `json:"head_branch" yaml:"head_branch"`
}

// Parse parses a JSON network description.
func Parse(data []byte) (*Network, error) {
	var n Network
	dec := json.NewDecoder(bytes.NewReader(data))
	err := dec.Decode(&n)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &n, nil
}

// ParseYAML parses a YAML network description.
func ParseYAML(data []byte) (*Network, error) {
	var n Network
	err := yaml.Unmarshal(data, &n)
	if err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &n, nil
}

// Load reads a network description from path. Files ending in .yaml or .yml are YAML, and everything else is JSON.
func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var n *Network
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		n, err = ParseYAML(data)
	default:
		n, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}
