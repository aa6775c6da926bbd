package main

import (
	"fmt"

	"github.com/d2verb/btu/internal/editor"
	"github.com/d2verb/btu/internal/schedule"
	"github.com/d2verb/btu/internal/ui"
)

type SchedulesCmd struct {
	List SchedulesListCmd `cmd:"" default:"1" help:"List task schedule definitions"`
	Show SchedulesShowCmd `cmd:"" help:"Show one task schedule definition"`
	New  SchedulesNewCmd  `cmd:"" help:"Create a task schedule definition"`
	Edit SchedulesEditCmd `cmd:"" help:"Edit a task schedule definition"`
}

type SchedulesListCmd struct{}

func (c *SchedulesListCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	infos, err := listSchedules(s.store())
	ui.PrintScheduleList(infos)
	if err != nil {
		// Parse errors still leave a usable list.
		ui.PrintWarning(err.Error())
	}
	return nil
}

// listSchedules loads every definition in the store for display.
func listSchedules(store *schedule.Store) ([]ui.ScheduleInfo, error) {
	ids, listErr := store.List()
	infos := make([]ui.ScheduleInfo, 0, len(ids))
	for _, id := range ids {
		d, err := store.Load(id)
		if err != nil {
			continue
		}
		infos = append(infos, scheduleInfo(d))
	}
	return infos, listErr
}

type SchedulesShowCmd struct {
	ID string `arg:"" predictor:"schedule" help:"Task schedule id"`
}

func (c *SchedulesShowCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	d, err := s.store().Load(c.ID)
	if err != nil {
		return mapClientError(err, c.ID)
	}
	ui.PrintScheduleDetails(scheduleInfo(d))
	return nil
}

type SchedulesNewCmd struct {
	ID          string `arg:"" help:"Task schedule id"`
	Task        string `required:"" help:"Task name the schedule enqueues"`
	Cron        string `default:"0 * * * *" help:"Cron expression"`
	Description string `help:"Free-form description"`
	Disabled    bool   `help:"Create the schedule disabled"`
	Edit        bool   `short:"e" help:"Open the new definition in an editor"`
}

func (c *SchedulesNewCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	store := s.store()

	if _, err := store.Path(c.ID); err == nil {
		return fmt.Errorf("task schedule '%s' already exists", c.ID)
	}
	d := &schedule.Definition{
		ID:          c.ID,
		Task:        c.Task,
		Cron:        c.Cron,
		Description: c.Description,
	}
	if c.Disabled {
		enabled := false
		d.Enabled = &enabled
	}
	if err := store.Save(d); err != nil {
		return err
	}
	path, err := store.Path(c.ID)
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Created %s", path))

	if c.Edit {
		return editDefinition(path)
	}
	ui.PrintInfo(fmt.Sprintf("Activate it with: btu reload %s", c.ID))
	return nil
}

type SchedulesEditCmd struct {
	ID string `arg:"" predictor:"schedule" help:"Task schedule id"`
}

func (c *SchedulesEditCmd) Run(cli *CLI) error {
	s, err := loadSettings(cli)
	if err != nil {
		return err
	}
	path, err := s.store().Path(c.ID)
	if err != nil {
		return mapClientError(err, c.ID)
	}
	if err := editDefinition(path); err != nil {
		return err
	}
	ui.PrintInfo(fmt.Sprintf("Apply the change with: btu reload %s", c.ID))
	return nil
}

func editDefinition(path string) error {
	ed, err := editor.Find()
	if err != nil {
		return err
	}
	return editor.Open(ed, path)
}
