package main

import (
	"context"
	"fmt"

	"github.com/d2verb/btu/internal/schedule"
	"github.com/d2verb/btu/internal/ui"
)

type ReloadCmd struct {
	ID string `arg:"" predictor:"schedule" help:"Task schedule id"`
}

func (c *ReloadCmd) Run(cli *CLI) error {
	if err := schedule.ValidateID(c.ID); err != nil {
		return fmt.Errorf("invalid schedule id: %w", err)
	}
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}

	msg, err := s.newClient().ReloadTaskSchedule(context.Background(), c.ID)
	if err != nil {
		return mapClientError(err, c.ID)
	}
	ui.PrintSuccess(msg)
	return nil
}

type CancelCmd struct {
	ID string `arg:"" predictor:"schedule" help:"Task schedule id"`
}

func (c *CancelCmd) Run(cli *CLI) error {
	if err := schedule.ValidateID(c.ID); err != nil {
		return fmt.Errorf("invalid schedule id: %w", err)
	}
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}

	msg, err := s.newClient().CancelTaskSchedule(context.Background(), c.ID)
	if err != nil {
		return mapClientError(err, c.ID)
	}
	ui.PrintSuccess(msg)
	return nil
}
