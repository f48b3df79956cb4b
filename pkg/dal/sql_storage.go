package dal

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// This has to be here to let go mods work work
	_ "github.com/mattn/go-sqlite3"
)

type sqlStorage struct {
	db  *sql.DB
	now func() time.Time
}

func (s *sqlStorage) Setup(ctx context.Context) error {
	logger.Info(ctx, "Setup SQL storage")
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS fints_systems(
	bank_code  nvarchar(8) NOT NULL,
	user_id    nvarchar(255) NOT NULL,
	system_id  nvarchar(255) NOT NULL,
	updated_at timestamp NOT NULL,
	PRIMARY KEY(bank_code, user_id)
);
CREATE TABLE IF NOT EXISTS transactions(
	id        nvarchar(255) NOT NULL PRIMARY KEY,
	amount    nvarchar(255) NOT NULL,
	date      nvarchar(255) NOT NULL,
	comment   nvarchar(255) NOT NULL,
	account_id nvarchar(255) NOT NULL,
	type_id    INTEGER(8) NOT NULL,
	created_at timestamp NOT NULL
);
`)
	return errors.Wrap(err, "Failed to setup storage")
}

func (s *sqlStorage) GetSystemID(ctx context.Context, bankCode, userID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT system_id FROM fints_systems
	WHERE bank_code = $1 AND user_id = $2`, bankCode, userID)
	var systemID string
	if err := row.Scan(&systemID); err != nil {
		if err == sql.ErrNoRows {
			return "", errors.Wrapf(ErrNotFound, "No system id of bank %v", bankCode)
		}
		return "", err
	}
	return systemID, nil
}

func (s *sqlStorage) SaveSystemID(ctx context.Context, bankCode, userID, systemID string) error {
	if _, err := s.db.ExecContext(ctx, `
	INSERT INTO fints_systems(bank_code, user_id, system_id, updated_at)
	VALUES($1, $2, $3, $4)
	ON CONFLICT(bank_code, user_id) DO UPDATE
	SET system_id=$3, updated_at=$4
	`,
		bankCode, userID, systemID, s.now()); err != nil {
		return errors.Wrap(err, "Failed to save system id")
	}
	return nil
}

// SavePendingTransaction inserts the transaction or refreshes it if already stored
func (s *sqlStorage) SavePendingTransaction(ctx context.Context, trx *PendingTransactionDTO) error {
	if _, err := s.db.ExecContext(ctx, `
	INSERT INTO transactions(
		id,
		amount,
		date,
		comment,
		account_id,
		type_id,
		created_at
	)
	VALUES($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT(id) DO UPDATE
	SET amount=$2, date=$3, comment=$4, account_id=$5, type_id=$6
	`, trx.ID, trx.Amount, trx.Date, trx.Comment, trx.AccountID, trx.TypeID, s.now()); err != nil {
		return errors.Wrap(err, "Failed to save transaction")
	}
	return nil
}

// SQLStorageOpt is an option of SQL storage
type SQLStorageOpt func(s *sqlStorage)

// WithSQLDb will set an explicit db instance for a storage
func WithSQLDb(db *sql.DB) SQLStorageOpt {
	return func(s *sqlStorage) {
		s.db = db
	}
}

// WithNow sets a source of current time
func WithNow(now func() time.Time) SQLStorageOpt {
	return func(s *sqlStorage) {
		s.now = now
	}
}

// NewSQLStorage returns an instance of a local storage
func NewSQLStorage(opts ...SQLStorageOpt) (Storage, error) {
	storage := &sqlStorage{now: time.Now}
	for _, opt := range opts {
		opt(storage)
	}
	if storage.db == nil {
		return nil, errors.New("SQL db is not configured")
	}
	return storage, nil
}
