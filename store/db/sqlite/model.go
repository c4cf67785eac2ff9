package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/waspdev/waspd/store"
)

type sqliteModelStore struct {
	db *sql.DB
}

func (s *sqliteModelStore) Upsert(ctx context.Context, model *store.Model) error {
	if !model.Status.IsValid() {
		return errors.Errorf("invalid model status: %s", model.Status)
	}
	if model.Progress < 0 || model.Progress > 100 {
		return errors.Errorf("model progress %d out of range [0, 100]", model.Progress)
	}

	query := `
		INSERT INTO model (id, name, category, size_bytes, status, progress, downloaded_ts, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, category = excluded.category, size_bytes = excluded.size_bytes,
			status = excluded.status, progress = excluded.progress,
			downloaded_ts = excluded.downloaded_ts, is_active = excluded.is_active
	`
	_, err := s.db.ExecContext(ctx, query,
		model.ID,
		model.Name,
		model.Category,
		model.SizeBytes,
		string(model.Status),
		model.Progress,
		model.DownloadedTs,
		model.IsActive,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to upsert model %s", model.ID)
	}
	return nil
}

func (s *sqliteModelStore) Get(ctx context.Context, id string) (*store.Model, error) {
	query := `
		SELECT id, name, category, size_bytes, status, progress, downloaded_ts, is_active
		FROM model WHERE id = ?
	`
	model, err := scanModel(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get model %s", id)
	}
	return model, nil
}

func (s *sqliteModelStore) List(ctx context.Context) ([]*store.Model, error) {
	query := `
		SELECT id, name, category, size_bytes, status, progress, downloaded_ts, is_active
		FROM model ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list models")
	}
	defer rows.Close()

	var models []*store.Model
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan model")
		}
		models = append(models, model)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate rows")
	}
	return models, nil
}

func (s *sqliteModelStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM model WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete model %s", id)
	}
	return nil
}

func (s *sqliteModelStore) PutWeights(ctx context.Context, modelID string, data []byte) error {
	query := `
		INSERT INTO model_weight (model_id, data) VALUES (?, ?)
		ON CONFLICT (model_id) DO UPDATE SET data = excluded.data
	`
	if _, err := s.db.ExecContext(ctx, query, modelID, data); err != nil {
		return errors.Wrapf(err, "failed to put weights for model %s", modelID)
	}
	return nil
}

func (s *sqliteModelStore) GetWeights(ctx context.Context, modelID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM model_weight WHERE model_id = ?`, modelID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get weights for model %s", modelID)
	}
	return data, nil
}

func (s *sqliteModelStore) DeleteWeights(ctx context.Context, modelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM model_weight WHERE model_id = ?`, modelID); err != nil {
		return errors.Wrapf(err, "failed to delete weights for model %s", modelID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*store.Model, error) {
	model := store.Model{}
	var status string
	err := row.Scan(
		&model.ID,
		&model.Name,
		&model.Category,
		&model.SizeBytes,
		&status,
		&model.Progress,
		&model.DownloadedTs,
		&model.IsActive,
	)
	if err != nil {
		return nil, err
	}
	model.Status = store.ModelStatus(status)
	return &model, nil
}
