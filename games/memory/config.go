/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package memory

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	ThemeDefault = "default"
	ThemeDark    = "dark"
)

// Config describes a single grid instance.
type Config struct {
	Selector  string `yaml:"selector" json:"selector"`
	Width     int    `yaml:"width" json:"width" validate:"gte=0"`
	Height    int    `yaml:"height" json:"height" validate:"gte=0"`
	Rows      int    `yaml:"rows" json:"rows" validate:"gte=1,lte=64"`
	Columns   int    `yaml:"columns" json:"columns" validate:"gte=1,lte=64"`
	Theme     string `yaml:"theme" json:"theme" validate:"omitempty,oneof=default dark"`
	TimeLimit int    `yaml:"time_limit" json:"time_limit"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks everything except the time limit, which the timer owns.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Normalized returns a copy with rows and columns forced even so that
// every card has exactly one partner.
func (c Config) Normalized() Config {
	c.Rows = evenUp(c.Rows)
	c.Columns = evenUp(c.Columns)

	if c.Theme == "" {
		c.Theme = ThemeDefault
	}

	return c
}

func (c Config) Total() int {
	n := c.Normalized()

	return n.Rows * n.Columns
}

func evenUp(n int) int {
	if n%2 != 0 {
		return n + 1
	}

	return n
}
