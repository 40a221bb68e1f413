package app

import (
	"context"
	"errors"
	"fmt"

	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/repo"
)

// DefaultUserID is used by local single-user workspaces when no user is
// named explicitly.
const DefaultUserID = "local-user"

// ResolveUserPreferences picks the target user and ensures working-hours
// preferences exist for them, seeding from workspace config when missing.
func ResolveUserPreferences(ctx context.Context, userOverride string, cfg *config.Config, r repo.Repo) (string, domain.WorkingHoursPreference, error) {
	userID := userOverride
	if userID == "" {
		userID = DefaultUserID
	}
	prefs, err := r.GetWorkingHours(ctx, userID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", prefs, err
		}
		prefs = domain.WorkingHoursPreference{
			UserID:     userID,
			DayStart:   cfg.Scheduling.DayStart,
			DayEnd:     cfg.Scheduling.DayEnd,
			ActiveDays: cfg.Scheduling.ActiveDays,
		}
		if err := r.UpsertWorkingHours(ctx, prefs); err != nil {
			return "", prefs, fmt.Errorf("seed working hours: %w", err)
		}
	}
	return userID, prefs, nil
}
