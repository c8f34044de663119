package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"webhook-bridge/internal/model"
)

const registrationColumns = `id, room_id, user_id, webhook_url, enabled, created_at, message_data_template`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var r model.Registration
	if err := row.Scan(&r.ID, &r.RoomID, &r.UserID, &r.WebhookURL, &r.Enabled, &r.CreatedAt, &r.MessageTemplate); err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}

func (s *Storage) queryRegistrations(ctx context.Context, query string, args ...any) ([]*model.Registration, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []*model.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := s.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Register creates a registration or revives an existing one.
//
// With existingID set, that exact row is re-enabled and its template replaced, provided it
// belongs to userID. Otherwise a row with the same (room, user, url) is re-enabled, or a new
// one is inserted.
func (s *Storage) Register(ctx context.Context, roomID, userID, webhookURL string, tmpl model.Template, existingID *int64) (*model.Registration, error) {
	if err := model.ValidateWebhookURL(webhookURL); err != nil {
		return nil, err
	}

	if existingID != nil {
		row := s.DB.QueryRowContext(ctx, `
			UPDATE webhook_registration
			SET enabled = true, message_data_template = $1
			WHERE id = $2 AND user_id = $3
			RETURNING `+registrationColumns,
			tmpl, *existingID, userID)
		r, err := scanRegistration(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to revive webhook %d: %w", *existingID, err)
		}
		return r, nil
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO webhook_registration (room_id, user_id, webhook_url, enabled, created_at, message_data_template)
		VALUES ($1, $2, $3, true, $4, $5)
		ON CONFLICT (room_id, user_id, webhook_url)
		DO UPDATE SET enabled = true, message_data_template = excluded.message_data_template
		RETURNING `+registrationColumns,
		roomID, userID, webhookURL, s.now(), tmpl)
	r, err := scanRegistration(row)
	if err != nil {
		return nil, fmt.Errorf("failed to register webhook: %w", err)
	}
	return r, nil
}

// ActiveForRoom returns the enabled registrations of a room.
func (s *Storage) ActiveForRoom(ctx context.Context, roomID string) ([]*model.Registration, error) {
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+`
		FROM webhook_registration
		WHERE room_id = $1 AND enabled = true`, roomID)
}

// AllForRoom returns enabled and disabled registrations ordered by ascending id.
func (s *Storage) AllForRoom(ctx context.Context, roomID string) ([]*model.Registration, error) {
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+`
		FROM webhook_registration
		WHERE room_id = $1
		ORDER BY id ASC`, roomID)
}

// ForSubscriberInRoom returns every row owned by userID in the room, most recent first.
func (s *Storage) ForSubscriberInRoom(ctx context.Context, roomID, userID string) ([]*model.Registration, error) {
	return s.queryRegistrations(ctx, `
		SELECT `+registrationColumns+`
		FROM webhook_registration
		WHERE room_id = $1 AND user_id = $2
		ORDER BY created_at DESC, id DESC`, roomID, userID)
}

func (s *Storage) GetByID(ctx context.Context, id int64) (*model.Registration, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+registrationColumns+`
		FROM webhook_registration
		WHERE id = $1`, id)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook %d: %w", id, err)
	}
	return r, nil
}

// Disable disables the caller's registration for webhookURL, or all of the caller's
// registrations in the room when webhookURL is empty.
func (s *Storage) Disable(ctx context.Context, roomID, userID, webhookURL string) (bool, error) {
	if webhookURL == "" {
		return s.exec(ctx, `
			UPDATE webhook_registration SET enabled = false
			WHERE room_id = $1 AND user_id = $2 AND enabled = true`, roomID, userID)
	}
	return s.exec(ctx, `
		UPDATE webhook_registration SET enabled = false
		WHERE room_id = $1 AND user_id = $2 AND webhook_url = $3 AND enabled = true`, roomID, userID, webhookURL)
}

func (s *Storage) DisableByID(ctx context.Context, id int64, userID string) (bool, error) {
	return s.setEnabled(ctx, id, userID, false)
}

func (s *Storage) EnableByID(ctx context.Context, id int64, userID string) (bool, error) {
	return s.setEnabled(ctx, id, userID, true)
}

// setEnabled reports false when no row with id belongs to userID at update time.
func (s *Storage) setEnabled(ctx context.Context, id int64, userID string, enabled bool) (bool, error) {
	return s.exec(ctx, `
		UPDATE webhook_registration SET enabled = $1
		WHERE id = $2 AND user_id = $3`, enabled, id, userID)
}

// Delete removes the caller's registration for webhookURL, or all of the caller's
// registrations in the room when webhookURL is empty.
func (s *Storage) Delete(ctx context.Context, roomID, userID, webhookURL string) (bool, error) {
	if webhookURL == "" {
		return s.exec(ctx, `
			DELETE FROM webhook_registration
			WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	}
	return s.exec(ctx, `
		DELETE FROM webhook_registration
		WHERE room_id = $1 AND user_id = $2 AND webhook_url = $3`, roomID, userID, webhookURL)
}

func (s *Storage) DeleteByID(ctx context.Context, id int64, userID string) (bool, error) {
	return s.exec(ctx, `
		DELETE FROM webhook_registration
		WHERE id = $1 AND user_id = $2`, id, userID)
}

// UpdateTemplate replaces the row's template; a nil template resets it to the default.
func (s *Storage) UpdateTemplate(ctx context.Context, id int64, userID string, tmpl model.Template) (bool, error) {
	return s.exec(ctx, `
		UPDATE webhook_registration SET message_data_template = $1
		WHERE id = $2 AND user_id = $3`, tmpl, id, userID)
}

// RewriteRoom moves every registration of oldRoom to newRoom. A row whose user and url
// are already registered in newRoom is dropped in favour of the existing one.
func (s *Storage) RewriteRoom(ctx context.Context, oldRoom, newRoom string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to rewrite room %s: %w", oldRoom, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE webhook_registration SET room_id = $1
		WHERE room_id = $2 AND NOT EXISTS (
			SELECT 1 FROM webhook_registration n
			WHERE n.room_id = $1
				AND n.user_id = webhook_registration.user_id
				AND n.webhook_url = webhook_registration.webhook_url)`, newRoom, oldRoom)
	if err != nil {
		return fmt.Errorf("failed to rewrite room %s: %w", oldRoom, err)
	}
	moved, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		DELETE FROM webhook_registration WHERE room_id = $1`, oldRoom)
	if err != nil {
		return fmt.Errorf("failed to drop conflicting rows of room %s: %w", oldRoom, err)
	}
	dropped, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to rewrite room %s: %w", oldRoom, err)
	}
	s.logger.InfoContext(ctx, "room rewritten", "old_room", oldRoom, "new_room", newRoom, "rows", moved, "dropped", dropped)
	return nil
}
