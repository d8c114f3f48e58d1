package browser

import (
	"context"
	"fmt"
	"time"

	"building_monitor/internal/models"

	"github.com/go-rod/rod"
)

// Inspector reads entity pages. It never clicks anything.
type Inspector struct {
	s   *Session
	now func() time.Time
}

func NewInspector(s *Session) *Inspector {
	return &Inspector{s: s, now: time.Now}
}

func (i *Inspector) Inspect(ctx context.Context, e models.Entity) (models.InspectionResult, error) {
	var res models.InspectionResult
	err := i.s.do(ctx, func(p *rod.Page) error {
		if err := i.s.visit(p, i.s.entityURL(string(e.ID))); err != nil {
			return err
		}
		out, err := i.s.read(p, e.Kind, i.now())
		res = out
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CheckSession loads the home page and looks for the login marker. Without a
// home_url the check is skipped.
func (i *Inspector) CheckSession(ctx context.Context) error {
	if i.s.cfg.HomeURL == "" {
		return nil
	}
	return i.s.do(ctx, func(p *rod.Page) error {
		if err := i.s.visit(p, i.s.cfg.HomeURL); err != nil {
			return err
		}
		out, err := i.s.loggedOut(p)
		if err != nil {
			return err
		}
		if out {
			return models.ErrAuthRequired
		}
		return nil
	})
}

// read classifies the page currently loaded in p.
func (s *Session) read(p *rod.Page, kind models.Kind, now time.Time) (models.InspectionResult, error) {
	out, err := s.loggedOut(p)
	if err != nil {
		return nil, err
	}
	if out {
		return nil, models.ErrAuthRequired
	}
	sel := s.cfg.Selectors

	if text, ok, err := textOf(p, sel.ConstructionTimer); err != nil {
		return nil, err
	} else if ok {
		finish, err := parseFinishTime(text, now, s.cfg.TimeLayouts)
		if err != nil {
			return models.Unknown{Reason: fmt.Sprintf("construction timer: %v", err)}, nil
		}
		return models.UnderConstruction{FinishAt: finish}, nil
	}

	if text, ok, err := textOf(p, sel.ProductionTimer); err != nil {
		return nil, err
	} else if ok {
		finish, err := parseFinishTime(text, now, s.cfg.TimeLayouts)
		if err != nil {
			return models.Unknown{Reason: fmt.Sprintf("production timer: %v", err)}, nil
		}
		return models.Producing{FinishAt: finish}, nil
	}

	if kind != models.KindDegradation {
		return models.Healthy{}, nil
	}

	text, ok, err := textOf(p, sel.Metric)
	if err != nil {
		return nil, err
	}
	if !ok {
		return models.Unknown{Reason: "metric not found"}, nil
	}
	metric, err := parseMetric(text)
	if err != nil {
		return models.Unknown{Reason: err.Error()}, nil
	}
	if metric >= s.cfg.HealthyMetric {
		return models.Healthy{}, nil
	}

	d := models.Degraded{Metric: metric}
	if text, ok, err := textOf(p, sel.SecondaryMetric); err == nil && ok {
		if v, err := parseMetric(text); err == nil {
			d.Secondary = &v
		}
	}
	return d, nil
}
