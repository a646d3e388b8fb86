package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/configor"
	"github.com/robfig/cron/v3"

	"github.com/meng-fucius/guardbot/internal/templates"
)

type (
	// Policy is the moderation policy surface, loaded from a YAML file.
	Policy struct {
		Probability         float64  `yaml:"probability" default:"0.1"`
		ScanSchedule        string   `yaml:"scan_schedule" default:"'@every 1h'"`
		AutoKickOnSpeak     bool     `yaml:"auto_kick_on_speak"`
		NotifyAdminID       int64    `yaml:"notify_admin_id"`
		Keywords            []string `yaml:"keywords"`
		MuteThreshold       int      `yaml:"mute_threshold" default:"3"`
		MuteDurationSeconds int      `yaml:"mute_duration_seconds" default:"600"`
		Messages            Messages `yaml:"messages"`
	}

	Messages struct {
		Warn            templates.Set `yaml:"warn"`
		Mute            templates.Set `yaml:"mute"`
		Kick            templates.Set `yaml:"kick"`
		BanSuccess      templates.Set `yaml:"ban_success"`
		UnbanSuccess    templates.Set `yaml:"unban_success"`
		Unresolved      templates.Set `yaml:"unresolved"`
		AddSuccess      templates.Set `yaml:"add_success"`
		GiveSuccess     templates.Set `yaml:"give_success"`
		DeductSuccess   templates.Set `yaml:"deduct_success"`
		TransferSuccess templates.Set `yaml:"transfer_success"`
		QuerySuccess    templates.Set `yaml:"query_success"`
		RankSuccess     templates.Set `yaml:"rank_success"`
		OperationFail   templates.Set `yaml:"operation_fail"`
		ScanSummary     templates.Set `yaml:"scan_summary"`
	}
)

func LoadPolicy(path string) (*Policy, error) {
	policy := &Policy{}
	if err := configor.New(&configor.Config{ErrorOnUnmatchedKeys: true}).Load(policy, path); err != nil {
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}
	policy.Messages.applyDefaults()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}
	return policy, nil
}

func (p *Policy) Validate() error {
	var errs []error
	if p.Probability < 0 || p.Probability > 1 {
		errs = append(errs, fmt.Errorf("probability %v out of [0,1]", p.Probability))
	}
	if _, err := cron.ParseStandard(p.ScanSchedule); err != nil {
		errs = append(errs, fmt.Errorf("scan schedule %q: %w", p.ScanSchedule, err))
	}
	if p.MuteThreshold < 1 {
		errs = append(errs, fmt.Errorf("mute threshold %d must be at least 1", p.MuteThreshold))
	}
	if p.MuteDurationSeconds < 60 {
		errs = append(errs, fmt.Errorf("mute duration %ds must be at least 60s", p.MuteDurationSeconds))
	}
	for i, keyword := range p.Keywords {
		if strings.TrimSpace(keyword) == "" {
			errs = append(errs, fmt.Errorf("keyword %d is empty", i))
		}
	}
	return errors.Join(errs...)
}

func (p *Policy) MuteDuration() time.Duration {
	return time.Duration(p.MuteDurationSeconds) * time.Second
}

func (m *Messages) applyDefaults() {
	defaults := map[*templates.Set]templates.Set{
		&m.Warn:            {"%user%, watch your language (%count%/%threshold%)"},
		&m.Mute:            {"%user% has been muted for %duration%"},
		&m.Kick:            {"%user% is blacklisted and has been removed"},
		&m.BanSuccess:      {"%user% added to the blacklist"},
		&m.UnbanSuccess:    {"%user% removed from the blacklist"},
		&m.Unresolved:      {"no linked account for %user%, nothing changed"},
		&m.AddSuccess:      {"@%user% +1 point, now at %score%"},
		&m.GiveSuccess:     {"gave %amount% points to %target%"},
		&m.DeductSuccess:   {"deducted %amount% points from %target%"},
		&m.TransferSuccess: {"transferred %amount% points to %target%"},
		&m.QuerySuccess:    {"current points: %score%"},
		&m.RankSuccess:     {"points leaderboard:"},
		&m.OperationFail:   {"operation failed"},
		&m.ScanSummary:     {"sweep %run% done: %kicked% kicked, %failures% failures"},
	}
	for target, value := range defaults {
		if len(*target) == 0 {
			*target = value
		}
	}
}
