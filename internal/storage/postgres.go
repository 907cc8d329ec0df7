package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/attend/internal/config"
	"github.com/your-org/attend/internal/models"
	"github.com/your-org/attend/internal/vision"
)

// ErrNotFound is returned when a row addressed by key does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Persons ---

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.PersonSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(fe.id)
		 FROM persons p
		 LEFT JOIN face_embeddings fe ON fe.person_id = p.id
		 GROUP BY p.id
		 ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.PersonSummary
	for rows.Next() {
		var p models.PersonSummary
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.FaceCount); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// DeletePerson removes a person and, by cascade, their embeddings. It returns
// the source keys of the removed embeddings so callers can clean up objects.
func (s *PostgresStore) DeletePerson(ctx context.Context, name string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fe.source_key FROM face_embeddings fe
		 JOIN persons p ON p.id = fe.person_id
		 WHERE p.name = $1 AND fe.source_key <> ''`, name)
	if err != nil {
		return nil, fmt.Errorf("list person sources: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan person sources: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return keys, nil
}

// --- Face Embeddings ---

// AddEmbeddings enrolls several embeddings for one person in a transaction.
func (s *PostgresStore) AddEmbeddings(ctx context.Context, name string, embeddings []models.FaceEmbedding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enrollment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var personID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO persons (id, name) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET updated_at = NOW()
		 RETURNING id`,
		uuid.New(), name,
	).Scan(&personID)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}

	batch := &pgx.Batch{}
	for _, fe := range embeddings {
		batch.Queue(
			`INSERT INTO face_embeddings (id, person_id, embedding, quality, source_key) VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), personID, pgvector.NewVector(fe.Embedding), fe.Quality, fe.SourceKey)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// LoadGallery reads every enrolled embedding grouped by person name.
func (s *PostgresStore) LoadGallery(ctx context.Context) (vision.Gallery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.name, fe.embedding
		 FROM face_embeddings fe
		 JOIN persons p ON p.id = fe.person_id
		 ORDER BY p.name, fe.created_at`)
	if err != nil {
		return nil, fmt.Errorf("load gallery: %w", err)
	}
	defer rows.Close()

	gallery := vision.Gallery{}
	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		gallery[name] = append(gallery[name], vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery: %w", err)
	}
	return gallery, nil
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, m models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, name, camera_id, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.Name, m.CameraID, m.Status, m.StartedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, ended_at = $2 WHERE id = $3`,
		models.SessionStatusClosed, endedAt, id)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// --- Attendance ---

// Append implements attendance.Sink. A second record for the same person in
// the same session is ignored.
func (s *PostgresStore) Append(ctx context.Context, rec models.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO attendance (id, session_id, person_name, confidence, marked_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, person_name) DO NOTHING`,
		rec.ID, rec.SessionID, rec.PersonName, rec.Confidence, rec.MarkedAt)
	if err != nil {
		return fmt.Errorf("insert attendance: %w", err)
	}
	return nil
}

// AttendanceBetween returns records with from <= marked_at < to, oldest first.
func (s *PostgresStore) AttendanceBetween(ctx context.Context, from, to time.Time) ([]models.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, person_name, confidence, marked_at
		 FROM attendance
		 WHERE marked_at >= $1 AND marked_at < $2
		 ORDER BY marked_at, person_name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query attendance: %w", err)
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		if err := rows.Scan(&r.ID, &r.SessionID, &r.PersonName, &r.Confidence, &r.MarkedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// --- Cameras ---

func (s *PostgresStore) CreateCamera(ctx context.Context, c *models.Camera) error {
	c.ID = uuid.New()
	c.Status = models.CameraStatusStopped
	return s.pool.QueryRow(ctx,
		`INSERT INTO cameras (id, name, url, camera_type, fps, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		c.ID, c.Name, c.URL, c.CameraType, c.FPS, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

const cameraColumns = `id, name, url, camera_type, fps, status, error_message, created_at, updated_at`

func scanCamera(row pgx.Row) (*models.Camera, error) {
	c := &models.Camera{}
	err := row.Scan(&c.ID, &c.Name, &c.URL, &c.CameraType, &c.FPS, &c.Status,
		&c.ErrorMessage, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) GetCamera(ctx context.Context, id uuid.UUID) (*models.Camera, error) {
	c, err := scanCamera(s.pool.QueryRow(ctx,
		`SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+cameraColumns+` FROM cameras ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, *c)
	}
	return cameras, rows.Err()
}

func (s *PostgresStore) UpdateCameraStatus(ctx context.Context, id uuid.UUID, status models.CameraStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE cameras SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3`,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("update camera status: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cameras WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
