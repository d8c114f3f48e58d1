package browser

import (
	"context"
	"fmt"
	"time"

	"building_monitor/internal/models"

	"github.com/go-rod/rod"
)

// Actuator clicks through the start and remediation flows.
type Actuator struct {
	s   *Session
	now func() time.Time
}

func NewActuator(s *Session) *Actuator {
	return &Actuator{s: s, now: time.Now}
}

func (a *Actuator) Act(ctx context.Context, e models.Entity, cmd models.Command) (models.RemediationOutcome, error) {
	var out models.RemediationOutcome
	err := a.s.do(ctx, func(p *rod.Page) error {
		if err := a.s.visit(p, a.s.entityURL(string(e.ID))); err != nil {
			return err
		}
		loggedOut, err := a.s.loggedOut(p)
		if err != nil {
			return err
		}
		if loggedOut {
			return models.ErrAuthRequired
		}

		switch cmd {
		case models.CommandStartProduction:
			out, err = a.startProduction(p)
		case models.CommandRemediateOnce:
			out, err = a.remediate(p, 1)
		case models.CommandRemediateTwice:
			out, err = a.remediate(p, 2)
		default:
			out = models.Failed{Reason: fmt.Sprintf("unsupported command %q", cmd)}
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Actuator) startProduction(p *rod.Page) (models.RemediationOutcome, error) {
	sel := a.s.cfg.Selectors
	if _, running, err := textOf(p, sel.ProductionTimer); err != nil {
		return nil, err
	} else if running {
		return models.NotNeeded{}, nil
	}

	if sel.StartPreset != "" {
		preset, ok, err := button(p, sel.StartPreset)
		if err != nil {
			return nil, err
		}
		if ok {
			if err := click(preset); err != nil {
				return nil, fmt.Errorf("click preset: %w", err)
			}
		}
	}

	start, ok, err := button(p, sel.StartButton)
	if err != nil {
		return nil, err
	}
	if !ok {
		return models.Failed{Reason: "start button not found"}, nil
	}
	if err := click(start); err != nil {
		return nil, fmt.Errorf("click start: %w", err)
	}
	if err := a.confirm(p); err != nil {
		return nil, err
	}

	return models.Started{NewFinishAt: a.finishAfterAction(p, sel.ProductionTimer)}, nil
}

func (a *Actuator) remediate(p *rod.Page, times int) (models.RemediationOutcome, error) {
	sel := a.s.cfg.Selectors
	if _, building, err := textOf(p, sel.ConstructionTimer); err != nil {
		return nil, err
	} else if building {
		return models.NotNeeded{}, nil
	}

	for n := 1; n <= times; n++ {
		btn, ok, err := button(p, sel.RemediateButton)
		if err != nil {
			return nil, err
		}
		if !ok {
			if n == 1 {
				return models.Failed{Reason: "remediate button not found"}, nil
			}
			return models.Failed{Reason: fmt.Sprintf("remediate button gone after %d of %d", n-1, times)}, nil
		}
		if err := click(btn); err != nil {
			return nil, fmt.Errorf("click remediate %d/%d: %w", n, times, err)
		}
		if err := a.confirm(p); err != nil {
			return nil, err
		}
	}

	return models.Started{NewFinishAt: a.finishAfterAction(p, sel.ConstructionTimer)}, nil
}

// confirm clicks the confirmation button when the flow shows one.
func (a *Actuator) confirm(p *rod.Page) error {
	a.s.settle(p)
	btn, ok, err := button(p, a.s.cfg.Selectors.ConfirmButton)
	if err != nil || !ok {
		return err
	}
	if err := click(btn); err != nil {
		return fmt.Errorf("click confirm: %w", err)
	}
	a.s.settle(p)
	return nil
}

// finishAfterAction reads the timer the action should have started. A
// missing or unreadable timer leaves the time to a follow-up inspection.
func (a *Actuator) finishAfterAction(p *rod.Page, selector string) *time.Time {
	text, ok, err := textOf(p, selector)
	if err != nil || !ok {
		return nil
	}
	finish, err := parseFinishTime(text, a.now(), a.s.cfg.TimeLayouts)
	if err != nil {
		a.s.log.Debugw("finish_time_unreadable", "text", text, "err", err)
		return nil
	}
	return &finish
}
