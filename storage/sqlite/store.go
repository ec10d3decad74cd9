package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/LdDl/occupancy-go/ingest"
	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/occupancy"
	"github.com/LdDl/occupancy-go/thermal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when requested record does not exist
var ErrNotFound = errors.New("not found")

// Store keeps frames, background snapshots, tracks and events in sqlite database
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) database at path and migrates it to the latest schema
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open database %s", path)
	}
	// Single writer: collector and analyzer never share a connection pool
	db.SetMaxOpenConns(1)
	if _, err = db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "Can't set busy timeout")
	}
	store := &Store{
		db:     db,
		logger: logger,
	}
	if err = store.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database
func (store *Store) Close() error {
	return store.db.Close()
}

func (store *Store) migrateUp() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errors.Wrap(err, "Can't read embedded migrations")
	}
	driver, err := sqlitemigrate.WithInstance(store.db, &sqlitemigrate.Config{})
	if err != nil {
		return errors.Wrap(err, "Can't create sqlite migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, "Can't create migrate instance")
	}
	m.Log = &migrateLogger{logger: store.logger}
	// Closing m would close the underlying database
	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "Migration up failed")
	}
	version, dirty, err := m.Version()
	if err != nil {
		return errors.Wrap(err, "Can't read schema version")
	}
	store.logger.Debug("storage: schema ready", "version", version, "dirty", dirty)
	return nil
}

// migrateLogger implements migrate.Logger on top of slog
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf("[migrate] "+format, v...))
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// InsertReading stores decoded sensor packet received at timestamp
func (store *Store) InsertReading(ctx context.Context, timestamp time.Time, reading ingest.Reading) error {
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO frames (node_id, timestamp_ns, kind, grid, trig, co2_ppm, humidity, temperature, pir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		reading.NodeID,
		timestamp.UnixNano(),
		reading.Kind.String(),
		formatGrid(reading.Grid),
		reading.Trigger,
		reading.CO2PPM,
		reading.Humidity,
		reading.Temperature,
		reading.PIR,
	)
	if err != nil {
		return errors.Wrapf(err, "Can't insert frame of node %d", reading.NodeID)
	}
	return nil
}

// Frames returns frames of the node taken in [from; to] in timestamp order
func (store *Store) Frames(ctx context.Context, nodeID int, from, to time.Time) ([]thermal.Frame, error) {
	rows, err := store.db.QueryContext(ctx, `
		SELECT timestamp_ns, kind, grid FROM frames
		WHERE node_id = ? AND timestamp_ns BETWEEN ? AND ?
		ORDER BY timestamp_ns, frame_id`,
		nodeID, from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't query frames of node %d", nodeID)
	}
	defer rows.Close()

	frames := make([]thermal.Frame, 0)
	for rows.Next() {
		var (
			timestampNs int64
			kindText    string
			gridText    string
		)
		if err = rows.Scan(&timestampNs, &kindText, &gridText); err != nil {
			return nil, errors.Wrap(err, "Can't scan frame")
		}
		kind, err := thermal.ParseFrameKind(kindText)
		if err != nil {
			return nil, errors.Wrapf(err, "frame of node %d at %d", nodeID, timestampNs)
		}
		grid, err := parseGrid(gridText)
		if err != nil {
			return nil, errors.Wrapf(err, "frame of node %d at %d", nodeID, timestampNs)
		}
		frames = append(frames, thermal.Frame{
			NodeID:    nodeID,
			Timestamp: time.Unix(0, timestampNs).UTC(),
			Kind:      kind,
			Grid:      grid,
		})
	}
	return frames, rows.Err()
}

// Nodes returns identifiers of nodes having stored frames
func (store *Store) Nodes(ctx context.Context) ([]int, error) {
	rows, err := store.db.QueryContext(ctx, `SELECT DISTINCT node_id FROM frames ORDER BY node_id`)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query nodes")
	}
	defer rows.Close()
	nodes := make([]int, 0)
	for rows.Next() {
		var nodeID int
		if err = rows.Scan(&nodeID); err != nil {
			return nil, errors.Wrap(err, "Can't scan node")
		}
		nodes = append(nodes, nodeID)
	}
	return nodes, rows.Err()
}

// SaveBackground inserts or replaces background snapshot of the node
func (store *Store) SaveBackground(ctx context.Context, model thermal.BackgroundModel) error {
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO backgrounds (node_id, updated_ns, background, sample_count, mean, sum_sq_diff)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			updated_ns = excluded.updated_ns,
			background = excluded.background,
			sample_count = excluded.sample_count,
			mean = excluded.mean,
			sum_sq_diff = excluded.sum_sq_diff`,
		model.NodeID,
		model.UpdatedAt.UnixNano(),
		formatCells(model.Background),
		model.SampleCount,
		formatCells(model.Mean),
		formatCells(model.SumSqDiff),
	)
	if err != nil {
		return errors.Wrapf(err, "Can't save background of node %d", model.NodeID)
	}
	return nil
}

const selectBackgrounds = `SELECT node_id, updated_ns, background, sample_count, mean, sum_sq_diff FROM backgrounds`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackground(row rowScanner) (thermal.BackgroundModel, error) {
	var (
		model          thermal.BackgroundModel
		updatedNs      int64
		backgroundText string
		meanText       string
		sumSqDiffText  string
	)
	if err := row.Scan(&model.NodeID, &updatedNs, &backgroundText, &model.SampleCount, &meanText, &sumSqDiffText); err != nil {
		return model, err
	}
	var err error
	if model.Background, err = parseCells(backgroundText); err != nil {
		return model, errors.Wrapf(err, "background of node %d", model.NodeID)
	}
	if model.Mean, err = parseCells(meanText); err != nil {
		return model, errors.Wrapf(err, "mean of node %d", model.NodeID)
	}
	if model.SumSqDiff, err = parseCells(sumSqDiffText); err != nil {
		return model, errors.Wrapf(err, "sum of squared differences of node %d", model.NodeID)
	}
	model.UpdatedAt = time.Unix(0, updatedNs).UTC()
	return model, nil
}

// LoadBackground returns background snapshot of the node or ErrNotFound
func (store *Store) LoadBackground(ctx context.Context, nodeID int) (thermal.BackgroundModel, error) {
	row := store.db.QueryRowContext(ctx, selectBackgrounds+` WHERE node_id = ?`, nodeID)
	model, err := scanBackground(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model, errors.Wrapf(ErrNotFound, "background of node %d", nodeID)
		}
		return model, errors.Wrapf(err, "Can't load background of node %d", nodeID)
	}
	return model, nil
}

// LoadBackgrounds returns snapshots of every node ordered by node
func (store *Store) LoadBackgrounds(ctx context.Context) ([]thermal.BackgroundModel, error) {
	rows, err := store.db.QueryContext(ctx, selectBackgrounds+` ORDER BY node_id`)
	if err != nil {
		return nil, errors.Wrap(err, "Can't query backgrounds")
	}
	defer rows.Close()
	models := make([]thermal.BackgroundModel, 0)
	for rows.Next() {
		model, err := scanBackground(rows)
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan background")
		}
		models = append(models, model)
	}
	return models, rows.Err()
}

// SaveTracks stores track history of the node. Tracks saved earlier with the same id are replaced
func (store *Store) SaveTracks(ctx context.Context, nodeID int, tracks []*mot.Track) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO tracks (
			track_id, node_id, start_ns, end_ns, times, readings, duration, avg_size, min_size, max_size, avg_temp,
			displacement, centroids, avg_bearing, bearings, avg_velocity, velocities, predictions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Can't prepare track insert")
	}
	defer stmt.Close()
	for _, track := range tracks {
		minSize, maxSize, avgSize := track.GetSizeStats()
		bearings := track.GetBearings()
		velocities := track.GetVelocities()
		_, err = stmt.ExecContext(ctx,
			track.GetID().String(),
			nodeID,
			track.GetStartTime().UnixNano(),
			track.GetEndTime().UnixNano(),
			formatTimes(track.GetTimes()),
			track.GetReadings(),
			track.GetDuration(),
			avgSize,
			minSize,
			maxSize,
			track.GetAvgTemp(),
			track.GetDisplacement(),
			formatPoints(track.GetCentroids()),
			track.AverageBearing(),
			formatFloats(bearings[1:]),
			track.AverageVelocity(),
			formatFloats(velocities[1:]),
			formatPoints(track.GetPredictions()),
		)
		if err != nil {
			return errors.Wrapf(err, "Can't insert track %s", track.GetID())
		}
	}
	return tx.Commit()
}

// TrackSummary is stored track history.
// Bearings and velocities do not include the creation placeholder
type TrackSummary struct {
	TrackID     uuid.UUID
	NodeID      int
	Start       time.Time
	End         time.Time
	Readings    int
	Duration    float64
	AvgSize     float64
	AvgTemp     float64
	AvgBearing  float64
	AvgVelocity float64
	Centroids   []mot.Point
	Bearings    []float64
	Velocities  []float64
}

// Tracks returns stored tracks of the node started in [from; to]
func (store *Store) Tracks(ctx context.Context, nodeID int, from, to time.Time) ([]TrackSummary, error) {
	rows, err := store.db.QueryContext(ctx, `
		SELECT track_id, start_ns, end_ns, readings, duration, avg_size, avg_temp, avg_bearing, avg_velocity, centroids, bearings, velocities
		FROM tracks WHERE node_id = ? AND start_ns BETWEEN ? AND ?
		ORDER BY start_ns, track_id`,
		nodeID, from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't query tracks of node %d", nodeID)
	}
	defer rows.Close()
	summaries := make([]TrackSummary, 0)
	for rows.Next() {
		var (
			summary        TrackSummary
			idText         string
			startNs, endNs int64
			centroidsText  string
			bearingsText   string
			velocitiesText string
		)
		err = rows.Scan(&idText, &startNs, &endNs, &summary.Readings, &summary.Duration, &summary.AvgSize, &summary.AvgTemp,
			&summary.AvgBearing, &summary.AvgVelocity, &centroidsText, &bearingsText, &velocitiesText)
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan track")
		}
		if summary.TrackID, err = uuid.Parse(idText); err != nil {
			return nil, errors.Wrapf(err, "track id '%s'", idText)
		}
		if summary.Centroids, err = parsePoints(centroidsText); err != nil {
			return nil, errors.Wrapf(err, "centroids of track %s", idText)
		}
		if summary.Bearings, err = parseFloats(bearingsText); err != nil {
			return nil, errors.Wrapf(err, "bearings of track %s", idText)
		}
		if summary.Velocities, err = parseFloats(velocitiesText); err != nil {
			return nil, errors.Wrapf(err, "velocities of track %s", idText)
		}
		summary.NodeID = nodeID
		summary.Start = time.Unix(0, startNs).UTC()
		summary.End = time.Unix(0, endNs).UTC()
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// SaveEvents stores occupancy events. Event of already stored track is replaced
func (store *Store) SaveEvents(ctx context.Context, events []occupancy.Event) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Can't begin transaction")
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO events (node_id, timestamp_ns, direction, track_id, avg_bearing, avg_velocity, readings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "Can't prepare event insert")
	}
	defer stmt.Close()
	for _, event := range events {
		_, err = stmt.ExecContext(ctx,
			event.NodeID,
			event.Timestamp.UnixNano(),
			event.Direction.String(),
			event.TrackID.String(),
			event.AvgBearing,
			event.AvgVelocity,
			event.Readings,
		)
		if err != nil {
			return errors.Wrapf(err, "Can't insert event of track %s", event.TrackID)
		}
	}
	return tx.Commit()
}

// Events returns events of the node in [from; to] in timestamp order
func (store *Store) Events(ctx context.Context, nodeID int, from, to time.Time) ([]occupancy.Event, error) {
	rows, err := store.db.QueryContext(ctx, `
		SELECT timestamp_ns, direction, track_id, avg_bearing, avg_velocity, readings FROM events
		WHERE node_id = ? AND timestamp_ns BETWEEN ? AND ?
		ORDER BY timestamp_ns, event_id`,
		nodeID, from.UnixNano(), to.UnixNano(),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't query events of node %d", nodeID)
	}
	defer rows.Close()
	events := make([]occupancy.Event, 0)
	for rows.Next() {
		var (
			event         occupancy.Event
			timestampNs   int64
			directionText string
			idText        string
		)
		if err = rows.Scan(&timestampNs, &directionText, &idText, &event.AvgBearing, &event.AvgVelocity, &event.Readings); err != nil {
			return nil, errors.Wrap(err, "Can't scan event")
		}
		if event.Direction, err = occupancy.ParseDirection(directionText); err != nil {
			return nil, err
		}
		if event.TrackID, err = uuid.Parse(idText); err != nil {
			return nil, errors.Wrapf(err, "track id '%s'", idText)
		}
		event.NodeID = nodeID
		event.Timestamp = time.Unix(0, timestampNs).UTC()
		events = append(events, event)
	}
	return events, rows.Err()
}
