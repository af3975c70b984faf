package cron

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	triggerSeparator = ";"
	jobSeparator     = ":"
	jobListSeparator = ","
)

// TriggerSpec is one parsed entry of a schedule spec.
type TriggerSpec struct {
	Jobs     []string
	CronSpec string
}

// ParseTriggerSpecs parses a schedule spec of the form
// job1,job2:cron_expression;job3:cron_expression2. Every job must be in
// available.
func ParseTriggerSpecs(spec string, available map[string]bool) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	var specs []TriggerSpec
	for _, s := range strings.Split(spec, triggerSeparator) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		ts, err := parseSingleTrigger(s, available)
		if err != nil {
			return nil, err
		}
		specs = append(specs, ts)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}
	return specs, nil
}

func parseSingleTrigger(s string, available map[string]bool) (TriggerSpec, error) {
	jobsStr, cronSpec, ok := strings.Cut(s, jobSeparator)
	if !ok {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'jobs:cron', got '%s'", s)
	}
	jobsStr = strings.TrimSpace(jobsStr)
	cronSpec = strings.TrimSpace(cronSpec)

	if jobsStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing jobs in '%s'", s)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", s)
	}

	var jobs []string
	seen := make(map[string]bool)
	for _, j := range strings.Split(jobsStr, jobListSeparator) {
		j = strings.TrimSpace(j)
		if j == "" {
			continue
		}
		if seen[j] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: duplicate job '%s' in '%s'", j, s)
		}
		seen[j] = true

		if !available[j] {
			return TriggerSpec{}, fmt.Errorf("invalid trigger spec: unknown job '%s' in '%s' (available: %s)",
				j, s, formatAvailable(available))
		}
		jobs = append(jobs, j)
	}

	if len(jobs) == 0 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: no valid jobs in '%s'", s)
	}

	if _, err := parser.Parse(cronSpec); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: invalid cron expression in '%s': %w", s, err)
	}

	return TriggerSpec{Jobs: jobs, CronSpec: cronSpec}, nil
}

func formatAvailable(available map[string]bool) string {
	names := make([]string, 0, len(available))
	for n := range available {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
