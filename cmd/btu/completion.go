package main

import (
	"strings"

	"github.com/d2verb/btu/internal/schedule"
	"github.com/posener/complete"
)

// scheduleIDPredictor completes task schedule ids from the definitions
// directory.
type scheduleIDPredictor struct {
	dir func() (string, error)
}

// newScheduleIDPredictor returns a predictor reading the configured
// schedules directory.
func newScheduleIDPredictor() complete.Predictor {
	return &scheduleIDPredictor{dir: func() (string, error) {
		s, err := loadSettings(nil)
		if err != nil {
			return "", err
		}
		return s.Config.SchedulesDir, nil
	}}
}

// Predict implements complete.Predictor interface.
func (p *scheduleIDPredictor) Predict(args complete.Args) []string {
	dir, err := p.dir()
	if err != nil {
		return nil
	}
	return completeScheduleIDs(dir, args.Last)
}

// completeScheduleIDs returns schedule ids in dir starting with partial.
func completeScheduleIDs(dir, partial string) []string {
	ids, _ := schedule.NewStore(dir).List()
	results := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, partial) {
			results = append(results, id)
		}
	}
	return results
}
