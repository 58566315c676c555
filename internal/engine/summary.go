package engine

import (
	"context"
	"time"

	"dutyline/internal/domain"
)

const timelineLimit = 25

// WeekRangeAt returns the Monday-through-Sunday week containing t. Sunday
// belongs to the week that started the previous Monday.
func WeekRangeAt(t time.Time) domain.WeekRange {
	t = t.UTC()
	dayIndex := int(t.Weekday())
	back := dayIndex - 1
	if dayIndex == 0 {
		back = 6
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -back)
	end := start.AddDate(0, 0, 6).Add(24*time.Hour - time.Millisecond)
	return domain.WeekRange{
		Start: domain.Timestamp(start),
		End:   domain.Timestamp(end),
	}
}

// Summary recomputes the client's dashboard view from current store state.
func (e Engine) Summary(ctx context.Context, clientID string) (domain.Summary, error) {
	if clientID == "" {
		return domain.Summary{}, invalid("clientId", "clientId is required")
	}
	duties, err := e.Repo.ListDuties(ctx, clientID)
	if err != nil {
		return domain.Summary{}, err
	}
	logs, err := e.Repo.ListLogs(ctx, clientID)
	if err != nil {
		return domain.Summary{}, err
	}
	titles, err := e.Repo.DutyTitles(ctx, clientID)
	if err != nil {
		return domain.Summary{}, err
	}

	s := domain.Summary{
		ClientID:  clientID,
		WeekRange: WeekRangeAt(e.now()),
		Active:    []domain.Duty{},
		Archived:  []domain.Duty{},
		Timeline:  []domain.TimelineEntry{},
	}
	for _, d := range duties {
		if d.Lifecycle == domain.LifecycleArchived {
			s.Archived = append(s.Archived, d)
			continue
		}
		s.Active = append(s.Active, d)
		switch d.Status {
		case domain.StatusPending:
			s.Totals.Pending++
		case domain.StatusInProgress:
			s.Totals.InProgress++
		case domain.StatusCompleted:
			s.Totals.Completed++
		}
	}
	if len(logs) > timelineLimit {
		logs = logs[:timelineLimit]
	}
	for _, l := range logs {
		title, ok := titles[l.DutyID]
		if !ok {
			title = "Unknown duty"
		}
		s.Timeline = append(s.Timeline, domain.TimelineEntry{
			ID:        l.ID,
			DutyID:    l.DutyID,
			DutyTitle: title,
			Message:   l.Message,
			CreatedAt: l.CreatedAt,
			Status:    l.Status,
			Lifecycle: l.Lifecycle,
		})
	}
	return s, nil
}
