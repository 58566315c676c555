package app

import (
	"context"
	"errors"
	"fmt"

	"dutyline/internal/config"
	"dutyline/internal/domain"
	"dutyline/internal/engine"
	"dutyline/internal/repo"
)

// ResolveClient picks the active client and ensures it exists in the DB,
// creating it on the fly when missing. Overrides win over config.
func ResolveClient(ctx context.Context, clientOverride string, cfg *config.Config, e engine.Engine) (string, error) {
	clientID := clientOverride
	if clientID == "" && cfg != nil {
		clientID = cfg.Client.ID
	}
	if clientID == "" {
		return "", fmt.Errorf("client not specified; use --client or set client.id in %s", config.Path(""))
	}
	if _, err := e.Repo.GetClient(ctx, clientID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		name := clientID
		if cfg != nil && cfg.Client.ID == clientID && cfg.Client.Name != "" {
			name = cfg.Client.Name
		}
		if _, err := e.CreateClient(ctx, clientID, name, ""); err != nil {
			return "", fmt.Errorf("create client: %w", err)
		}
	}
	return clientID, nil
}

// Seed loads a demo workspace: one client, two users, three duties, and a
// recorded completion so the timeline and export have data. Safe to run once
// per fresh database only.
func Seed(ctx context.Context, e engine.Engine) (string, error) {
	const clientID = "acme-co"
	if _, err := e.Repo.GetClient(ctx, clientID); err == nil {
		return clientID, fmt.Errorf("client %s already seeded", clientID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	if _, err := e.CreateClient(ctx, clientID, "Acme Co", "Demo workspace"); err != nil {
		return "", err
	}
	now := domain.Timestamp(e.Now())
	users := []domain.User{
		{ID: "user-manager", Name: "Avery Cole", Email: "avery@acme.example", Role: domain.RoleManager, CreatedAt: now},
		{ID: "user-staff", Name: "Jordan Lee", Email: "jordan@acme.example", Role: domain.RoleStaff, CreatedAt: now},
	}
	for _, u := range users {
		if err := e.Repo.InsertUser(ctx, nil, u); err != nil {
			return "", fmt.Errorf("insert user %s: %w", u.ID, err)
		}
	}
	duties := []engine.DutyCreateOptions{
		{ClientID: clientID, Title: "Patch critical servers", Description: "Apply this week's security patches", Frequency: "weekly", RequiresAttachment: true, AssignedTo: "user-staff"},
		{ClientID: clientID, Title: "Rotate access tokens", Description: "Rotate service tokens and record the change", Frequency: "monthly", NotesRequired: true},
		{ClientID: clientID, Title: "Archive monthly billing records", Frequency: "monthly"},
	}
	var created []domain.Duty
	for _, opts := range duties {
		d, err := e.CreateDuty(ctx, opts)
		if err != nil {
			return "", fmt.Errorf("create duty %q: %w", opts.Title, err)
		}
		created = append(created, d)
	}
	// Mark the billing duty done so the dashboard starts with history.
	if _, _, err := e.RecordEvent(ctx, engine.RecordEventOptions{
		DutyID:    created[2].ID,
		ClientID:  clientID,
		Status:    domain.StatusCompleted,
		Lifecycle: domain.LifecycleArchived,
		Notes:     "Filed under 2026-Q3",
	}); err != nil {
		return "", err
	}
	if _, _, err := e.RecordEvent(ctx, engine.RecordEventOptions{
		DutyID:    created[0].ID,
		ClientID:  clientID,
		Status:    domain.StatusInProgress,
		Lifecycle: domain.LifecycleActive,
	}); err != nil {
		return "", err
	}
	return clientID, nil
}
