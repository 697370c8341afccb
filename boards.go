/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/Seednode/matchgrid/games/memory"
	"gopkg.in/yaml.v3"
)

const defaultBoardName = "default"

var ErrUnknownBoard = errors.New("unknown board")

//go:embed boards.yaml
var defaultBoards []byte

// Board is a named grid preset.
type Board struct {
	Name          string `yaml:"name"`
	memory.Config `yaml:",inline"`
}

// Boards keeps presets in file order for the home page.
type Boards struct {
	list   []Board
	byName map[string]Board
}

func parseBoards(data []byte) ([]Board, error) {
	var boards []Board

	if err := yaml.Unmarshal(data, &boards); err != nil {
		return nil, fmt.Errorf("failed to parse boards: %w", err)
	}

	return boards, nil
}

func newBoards(fallback memory.Config, presets []Board) (*Boards, error) {
	b := &Boards{
		byName: make(map[string]Board, len(presets)+1),
	}

	all := append([]Board{{Name: defaultBoardName, Config: fallback}}, presets...)

	for _, board := range all {
		if board.Name == "" {
			return nil, errors.New("board is missing a name")
		}

		if _, exists := b.byName[board.Name]; exists {
			return nil, fmt.Errorf("duplicate board name %q", board.Name)
		}

		if board.TimeLimit < 0 {
			return nil, fmt.Errorf("board %q: %w", board.Name, memory.ErrInvalidDuration)
		}

		if err := board.Validate(); err != nil {
			return nil, fmt.Errorf("board %q: %w", board.Name, err)
		}

		b.byName[board.Name] = board
		b.list = append(b.list, board)
	}

	return b, nil
}

func loadBoards(cfg *Config) (*Boards, error) {
	data := defaultBoards

	if cfg.boardsFile != "" {
		var err error

		data, err = os.ReadFile(cfg.boardsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read boards file: %w", err)
		}
	}

	presets, err := parseBoards(data)
	if err != nil {
		return nil, err
	}

	return newBoards(cfg.board, presets)
}

// Get returns the named board, or the default board when name is empty.
func (b *Boards) Get(name string) (Board, error) {
	if name == "" {
		name = defaultBoardName
	}

	board, ok := b.byName[name]
	if !ok {
		return Board{}, fmt.Errorf("%w: %q", ErrUnknownBoard, name)
	}

	return board, nil
}

func (b *Boards) List() []Board {
	return b.list
}
