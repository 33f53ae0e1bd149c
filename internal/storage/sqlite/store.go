// Package sqlite persists one admission year per SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/JakeFAU/admissions-crawler/internal/admission"
	"github.com/JakeFAU/admissions-crawler/internal/metrics"
)

const driverName = "sqlite3"

// Config controls how a year's file is opened.
type Config struct {
	// BaseDir holds one <year>.db file per admission year.
	BaseDir      string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// Store implements admission.Store over one SQLite file.
type Store struct {
	DB     *sqlx.DB
	year   int
	path   string
	logger *zap.Logger
}

// Path returns the file backing year under baseDir.
func Path(baseDir string, year int) string {
	return filepath.Join(baseDir, strconv.Itoa(year)+".db")
}

// Open opens the storage unit for year and applies the schema. When create is
// false a missing file yields admission.ErrNotFound.
func Open(ctx context.Context, cfg Config, year int, create bool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := Path(cfg.BaseDir, year)
	mode := "rw"
	if create {
		mode = "rwc"
		if err := os.MkdirAll(cfg.BaseDir, 0o750); err != nil {
			return nil, fmt.Errorf("%w: create base dir %s: %w", admission.ErrStorageOpen, cfg.BaseDir, err)
		}
	} else if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("year %d: %w", year, admission.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: stat %s: %w", admission.ErrStorageOpen, path, err)
	}

	db, err := sqlx.Open(driverName, dsn(path, mode, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", admission.ErrStorageOpen, path, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db, logger)
		return nil, fmt.Errorf("%w: ping %s: %w", admission.ErrStorageOpen, path, err)
	}
	if err := runMigrations(db.DB); err != nil {
		closeQuietly(db, logger)
		return nil, fmt.Errorf("%w: %s: %w", admission.ErrStorageOpen, path, err)
	}

	metrics.IncOpenStores()
	logger.Info("storage unit opened", zap.Int("year", year), zap.String("path", path), zap.Bool("create", create))
	return &Store{DB: db, year: year, path: path, logger: logger}, nil
}

// NewWithDB wraps an already-migrated connection.
func NewWithDB(db *sqlx.DB, year int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.IncOpenStores()
	return &Store{DB: db, year: year, logger: logger}
}

func dsn(path, mode string, busy time.Duration) string {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?mode=%s&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=%d",
		path, mode, busy.Milliseconds())
}

func closeQuietly(db *sqlx.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("close sqlite after failed open", zap.Error(err))
	}
}

// Year returns the admission year this store holds.
func (s *Store) Year() int { return s.year }

// InsertRegion inserts a region; an existing code is left untouched.
func (s *Store) InsertRegion(ctx context.Context, region admission.Region) error {
	const q = `INSERT INTO regions (id, code, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, q, region.ID, region.Code, region.Name); err != nil {
		return fmt.Errorf("insert region %s: %w", region.Code, mapError(err))
	}
	return nil
}

const insertOfferSQL = `INSERT INTO offers (
	id, display_name, region_code, school_name, environment, track_name, bilingual,
	bilingual_language, total_seats, occupied_seats, profile, pathway,
	last_admitted_average, last_admitted_average_prev
) VALUES (
	:id, :display_name, :region_code, :school_name, :environment, :track_name, :bilingual,
	:bilingual_language, :total_seats, :occupied_seats, :profile, :pathway,
	:last_admitted_average, :last_admitted_average_prev
)`

// InsertOffer writes one offer in its own implicit transaction.
func (s *Store) InsertOffer(ctx context.Context, offer admission.Offer) error {
	if _, err := s.DB.NamedExecContext(ctx, insertOfferSQL, offer); err != nil {
		return fmt.Errorf("insert offer %s/%d: %w", offer.RegionCode, offer.ID, mapError(err))
	}
	return nil
}

const insertCandidateSQL = `INSERT INTO candidates (
	external_id, origin_school, region_code, admission_average, evaluation_average,
	graduation_average, romanian_exam_grade, math_exam_grade, assigned_school,
	offer_id, offer_display_label
) VALUES (
	:external_id, :origin_school, :region_code, :admission_average, :evaluation_average,
	:graduation_average, :romanian_exam_grade, :math_exam_grade, :assigned_school,
	:offer_id, :offer_display_label
)`

// InsertCandidates writes every candidate in one transaction. Any failure
// rolls back the whole batch.
func (s *Store) InsertCandidates(ctx context.Context, candidates []admission.Candidate) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin candidate tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback candidate tx", zap.Error(rbErr))
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, insertCandidateSQL)
	if err != nil {
		return fmt.Errorf("prepare candidate insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			s.logger.Debug("close candidate statement", zap.Error(closeErr))
		}
	}()

	for _, c := range candidates {
		if _, err = stmt.ExecContext(ctx, c); err != nil {
			return fmt.Errorf("insert candidate %s/%s: %w", c.RegionCode, c.ExternalID, mapError(err))
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit candidate tx: %w", err)
	}
	return nil
}

// ListRegions returns all regions ordered by code.
func (s *Store) ListRegions(ctx context.Context) ([]admission.Region, error) {
	regions := []admission.Region{}
	if err := s.DB.SelectContext(ctx, &regions, `SELECT id, code, name FROM regions ORDER BY code ASC`); err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}

// ListSchools returns the distinct school names of a region's offers.
func (s *Store) ListSchools(ctx context.Context, regionCode string) ([]string, error) {
	const q = `SELECT school_name FROM offers WHERE region_code = ? GROUP BY school_name ORDER BY school_name ASC`
	schools := []string{}
	if err := s.DB.SelectContext(ctx, &schools, q, regionCode); err != nil {
		return nil, fmt.Errorf("list schools in %s: %w", regionCode, err)
	}
	return schools, nil
}

// ListSchoolOffers returns (id, name) for each offer at a school, by ascending id.
func (s *Store) ListSchoolOffers(ctx context.Context, regionCode, school string) ([]admission.OfferSummary, error) {
	const q = `SELECT id, display_name FROM offers WHERE region_code = ? AND school_name = ? ORDER BY id ASC`
	offers := []admission.OfferSummary{}
	if err := s.DB.SelectContext(ctx, &offers, q, regionCode, school); err != nil {
		return nil, fmt.Errorf("list offers of %s/%s: %w", regionCode, school, err)
	}
	return offers, nil
}

// GetOffer returns one offer or admission.ErrNotFound.
func (s *Store) GetOffer(ctx context.Context, regionCode string, id int) (admission.Offer, error) {
	const q = `SELECT id, display_name, region_code, school_name, environment, track_name, bilingual,
	bilingual_language, total_seats, occupied_seats, profile, pathway,
	last_admitted_average, last_admitted_average_prev
FROM offers WHERE region_code = ? AND id = ?`
	var offer admission.Offer
	if err := s.DB.GetContext(ctx, &offer, q, regionCode, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return admission.Offer{}, fmt.Errorf("offer %s/%d: %w", regionCode, id, admission.ErrNotFound)
		}
		return admission.Offer{}, fmt.Errorf("get offer %s/%d: %w", regionCode, id, err)
	}
	return offer, nil
}

// ListOfferCandidates returns an offer's candidates, highest admission average first.
func (s *Store) ListOfferCandidates(ctx context.Context, regionCode string, offerID int) ([]admission.Candidate, error) {
	const q = `SELECT external_id, origin_school, region_code, admission_average, evaluation_average,
	graduation_average, romanian_exam_grade, math_exam_grade, assigned_school,
	offer_id, offer_display_label
FROM candidates WHERE region_code = ? AND offer_id = ?
ORDER BY admission_average DESC, external_id ASC`
	candidates := []admission.Candidate{}
	if err := s.DB.SelectContext(ctx, &candidates, q, regionCode, offerID); err != nil {
		return nil, fmt.Errorf("list candidates of %s/%d: %w", regionCode, offerID, err)
	}
	return candidates, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	metrics.DecOpenStores()
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("close sqlite year %d: %w", s.year, err)
	}
	s.logger.Debug("storage unit closed", zap.Int("year", s.year))
	return nil
}

// mapError converts primary key and unique violations to admission.ErrDuplicateKey.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %w", admission.ErrDuplicateKey, err)
		}
	}
	return err
}
