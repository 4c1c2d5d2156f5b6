package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/remedystack/calibration-engine/internal/models"
	"github.com/remedystack/calibration-engine/internal/utils"
)

// PredictionStore is the durable keyed store for prediction/outcome records.
// Records are keyed by issue_id; a second persist with the same id overwrites
// the prior record. Concurrent persists with the same id race and the last
// write physically completed wins; that is a documented limitation, not
// something the store corrects.
type PredictionStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// StoreOptions configures the underlying badger database.
type StoreOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger
}

// Open creates the store, creating the directory when needed. InMemory mode
// keeps everything in RAM and is intended for tests.
func Open(opts StoreOptions) (*PredictionStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("storage path is required for a persistent store")
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, utils.NewStorageError("create store directory", opts.Path, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	badgerOpts = badgerOpts.WithLogger(&badgerSlog{logger: opts.Logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, utils.NewStorageError("open store", opts.Path, err)
	}
	return &PredictionStore{db: db, logger: opts.Logger}, nil
}

// Persist writes one record keyed by issue_id, overwriting any prior record
// with the same id.
func (s *PredictionStore) Persist(ctx context.Context, pred models.ConfidencePrediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := pred.Validate(); err != nil {
		return fmt.Errorf("invalid prediction: %w", err)
	}

	data, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pred.IssueID), data)
	})
	if err != nil {
		return utils.NewStorageError("persist prediction", pred.IssueID, err)
	}
	return nil
}

// LoadAll returns records whose timestamp falls within the inclusive range;
// a nil range returns everything. Order is unspecified. Records that fail to
// parse are skipped and returned as MalformedRecord warnings; the load never
// aborts on them.
func (s *PredictionStore) LoadAll(ctx context.Context, within *models.TimeRange) ([]models.ConfidencePrediction, []models.MalformedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		preds     []models.ConfidencePrediction
		malformed []models.MalformedRecord
	)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var pred models.ConfidencePrediction
				if err := json.Unmarshal(val, &pred); err != nil {
					malformed = append(malformed, models.MalformedRecord{Key: key, Reason: err.Error()})
					return nil
				}
				if err := pred.Validate(); err != nil {
					malformed = append(malformed, models.MalformedRecord{Key: key, Reason: err.Error()})
					return nil
				}
				if within != nil && !within.Contains(pred.Timestamp) {
					return nil
				}
				preds = append(preds, pred)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, utils.NewStorageError("load predictions", "", err)
	}

	for _, m := range malformed {
		s.logger.Warn("skipping malformed record", slog.String("key", m.Key), slog.String("reason", m.Reason))
	}
	return preds, malformed, nil
}

// Close releases the underlying database.
func (s *PredictionStore) Close() error {
	return s.db.Close()
}

// badgerSlog routes badger's internal logging through slog at debug level so
// store noise stays out of normal output.
type badgerSlog struct {
	logger *slog.Logger
}

func (l *badgerSlog) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerSlog) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerSlog) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerSlog) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
