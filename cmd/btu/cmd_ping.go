package main

import (
	"context"
	"fmt"
	"time"

	"github.com/d2verb/btu/internal/ui"
)

type PingCmd struct{}

func (c *PingCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := s.newClient().Ping(context.Background()); err != nil {
		return mapClientError(err, "")
	}
	ui.PrintSuccess(fmt.Sprintf("pong (%s)", time.Since(start).Round(10*time.Microsecond)))
	return nil
}
