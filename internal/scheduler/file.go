package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shaiso/flowrun/internal/domain"
)

// LoadFile читает расписания из JSON-файла (массив domain.Schedule).
//
// Относительные flow_path разрешаются от директории файла.
// Расписание без поля enabled считается выключенным.
func LoadFile(path string) ([]*domain.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedules: %w", err)
	}

	var schedules []*domain.Schedule
	if err := json.Unmarshal(data, &schedules); err != nil {
		return nil, fmt.Errorf("decode schedules %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i, sched := range schedules {
		if sched == nil {
			return nil, fmt.Errorf("schedule #%d is null", i)
		}
		if sched.FlowPath != "" && !filepath.IsAbs(sched.FlowPath) {
			sched.FlowPath = filepath.Join(dir, sched.FlowPath)
		}
		if sched.Name == "" {
			sched.Name = filepath.Base(sched.FlowPath)
		}
		if err := Validate(sched); err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sched.Name, err)
		}
	}

	return schedules, nil
}
