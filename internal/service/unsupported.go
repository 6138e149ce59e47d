package service

import (
	"context"
	"fmt"
)

type unsupported struct {
	goos string
}

func (u unsupported) Name() string           { return "unsupported" }
func (u unsupported) DescriptorPath() string { return "" }
func (u unsupported) IsInstalled() bool      { return false }

func (u unsupported) Install(context.Context, string) error {
	return fmt.Errorf("%w (%s): run 'alfred daemon start' manually", ErrUnsupported, u.goos)
}

func (u unsupported) Uninstall(context.Context) error {
	return fmt.Errorf("%w (%s)", ErrUnsupported, u.goos)
}
