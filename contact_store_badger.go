package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	contactKeyPrefix   = []byte("contact/")
	contactSequenceKey = []byte("seq/contact")
)

var _ ContactRepository = &BadgerContactRepository{}

// BadgerContactRepository stores contact requests as JSON values in an
// embedded BadgerDB. Keys embed a zero-padded sequence number so key order is
// insertion order.
type BadgerContactRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	now func() time.Time
}

// NewBadgerContactRepository opens (or creates) a database in dirPath.
func NewBadgerContactRepository(dirPath string) (*BadgerContactRepository, error) {
	return openBadgerContactRepository(badger.DefaultOptions(dirPath))
}

func openBadgerContactRepository(opts badger.Options) (*BadgerContactRepository, error) {
	db, err := badger.Open(opts.WithLogger(badgerLogger{}))
	if err != nil {
		return nil, errors.Wrap(err, "open contact database")
	}

	seq, err := db.GetSequence(contactSequenceKey, 16)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open contact sequence")
	}

	log.Info().Str("dir", opts.Dir).Bool("in_memory", opts.InMemory).Msg("contact repository ready")
	return &BadgerContactRepository{db: db, seq: seq, now: time.Now}, nil
}

func contactKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", contactKeyPrefix, id))
}

func (r *BadgerContactRepository) Create(ctx context.Context, sub *ContactSubmission) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n, err := r.seq.Next()
	if err != nil {
		return errors.Wrap(err, "allocate contact id")
	}

	rec := *sub
	rec.ID = n + 1
	rec.CreatedAt = r.now().UTC()
	if rec.Status == "" {
		rec.Status = ContactStatusUnread
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal contact request")
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(contactKey(rec.ID), data)
	})
	if err != nil {
		return errors.Wrap(err, "store contact request")
	}

	*sub = rec
	return nil
}

func (r *BadgerContactRepository) List(ctx context.Context, filter ContactFilter) (*ContactPage, error) {
	page := &ContactPage{Items: []ContactSubmission{}}

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = contactKeyPrefix
		opts.PrefetchSize = 10

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, contactKeyPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(contactKeyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var sub ContactSubmission
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sub)
			})
			if err != nil {
				return errors.Wrapf(err, "decode %s", it.Item().Key())
			}
			if filter.Status != "" && sub.Status != filter.Status {
				continue
			}

			idx := int(page.Total)
			page.Total++
			if idx < filter.Offset || (filter.Limit > 0 && idx >= filter.Offset+filter.Limit) {
				continue
			}
			page.Items = append(page.Items, sub)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list contact requests")
	}
	return page, nil
}

func (r *BadgerContactRepository) UpdateStatus(ctx context.Context, id uint64, status ContactStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(contactKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrContactNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "load contact request %d", id)
		}

		var sub ContactSubmission
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sub)
		}); err != nil {
			return errors.Wrapf(err, "decode contact request %d", id)
		}

		sub.Status = status
		data, err := json.Marshal(sub)
		if err != nil {
			return errors.Wrap(err, "marshal contact request")
		}
		return txn.Set(contactKey(id), data)
	})
}

// Close releases the id sequence and closes the database.
func (r *BadgerContactRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		log.Warn().Err(err).Msg("release contact sequence")
	}
	return r.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Debug().Str("component", "badger").Msgf(format, args...)
}
