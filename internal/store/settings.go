package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/feedsync/feedsync/internal/model"
)

// singletonSettingsID is the fixed primary key of the one system_settings row.
const singletonSettingsID = "singleton"

const sqlGetSettings = `SELECT id, last_sync_time FROM system_settings WHERE id = ?`

const sqlUpsertSettings = `INSERT INTO system_settings (id, last_sync_time)
	VALUES (?, ?)
	ON CONFLICT(id) DO UPDATE SET last_sync_time = excluded.last_sync_time`

// GetOrCreateSettingsTx loads the singleton settings row, creating it with a
// zero watermark if it does not yet exist (§4.E.1: "epoch zero if freshly
// created"). Must run inside an open transaction so creation is atomic with
// whatever the caller does next.
func (s *Store) GetOrCreateSettingsTx(ctx context.Context, tx *sql.Tx) (*model.SystemSettings, error) {
	settings := &model.SystemSettings{}

	err := tx.QueryRowContext(ctx, sqlGetSettings, singletonSettingsID).
		Scan(&settings.ID, &settings.LastSyncTime)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		settings.ID = singletonSettingsID
		settings.LastSyncTime = 0

		if _, insertErr := tx.ExecContext(ctx, sqlUpsertSettings, settings.ID, settings.LastSyncTime); insertErr != nil {
			return nil, fmt.Errorf("store: create settings singleton: %w", insertErr)
		}

		return settings, nil
	case err != nil:
		return nil, fmt.Errorf("store: get settings: %w", err)
	default:
		return settings, nil
	}
}

// AdvanceWatermark sets last_sync_time to newWatermark. Callers must ensure
// newWatermark >= the current value (invariant 5); the pull pipeline enforces
// this by always passing time.Now() after a successful merge.
func (s *Store) AdvanceWatermark(ctx context.Context, tx *sql.Tx, newWatermark int64) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertSettings, singletonSettingsID, newWatermark); err != nil {
		return fmt.Errorf("store: advance watermark: %w", err)
	}

	return nil
}
