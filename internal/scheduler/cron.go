package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/flowrun/internal/domain"
)

// ErrNoTrigger — у расписания нет ни cron-выражения, ни интервала.
var ErrNoTrigger = errors.New("schedule has neither cron_expr nor interval_sec")

// cronParser — парсер cron-выражений.
// Кроме пяти полей понимает дескрипторы: @hourly, @daily, @every 30s.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет следующее время запуска после from.
// Для интервалов просто добавляет IntervalSec к from.
//
// Cron-выражение вычисляется в timezone расписания.
func NextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		if l, err := time.LoadLocation(sched.Timezone); err == nil {
			loc = l
		}
	}

	fromInTz := from.In(loc)

	if sched.IsCron() {
		return nextCron(sched.CronExpr, fromInTz)
	}

	if sched.IsInterval() {
		return fromInTz.Add(time.Duration(sched.IntervalSec) * time.Second).UTC(), nil
	}

	return time.Time{}, ErrNoTrigger
}

// nextCron вычисляет следующее время по cron-выражению.
func nextCron(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// Validate проверяет расписание перед добавлением.
func Validate(sched *domain.Schedule) error {
	if sched.FlowPath == "" {
		return errors.New("schedule has no flow_path")
	}
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", sched.Timezone, err)
		}
	}
	if sched.IsCron() {
		return ValidateCronExpr(sched.CronExpr)
	}
	if !sched.IsInterval() {
		return ErrNoTrigger
	}
	return nil
}
