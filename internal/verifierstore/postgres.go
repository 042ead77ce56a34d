package verifierstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"verifyengine/internal/model"
)

// PostgresStore persists verifier records in PostgreSQL.
//
// Schema (see migrations): verifier_records(subject_id PRIMARY KEY,
// credentials jsonb, authorized boolean, revoked_at timestamptz,
// revocation_reason text, successful_confirmations int,
// auto_qualified_reason text).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, subjectID string) (model.VerifierRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT subject_id, credentials, authorized, revoked_at, revocation_reason,
		       successful_confirmations, auto_qualified_reason
		FROM verifier_records WHERE subject_id = $1`, subjectID)

	var v model.VerifierRecord
	var credsRaw []byte
	if err := row.Scan(&v.SubjectID, &credsRaw, &v.Authorized, &v.RevokedAt, &v.RevocationReason,
		&v.SuccessfulConfirmations, &v.AutoQualifiedReason); err != nil {
		if err == sql.ErrNoRows {
			return model.VerifierRecord{}, false, nil
		}
		return model.VerifierRecord{}, false, fmt.Errorf("get verifier record: %w", err)
	}
	if len(credsRaw) > 0 {
		if err := json.Unmarshal(credsRaw, &v.Credentials); err != nil {
			return model.VerifierRecord{}, false, fmt.Errorf("decode verifier credentials: %w", err)
		}
	}
	return v, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, v model.VerifierRecord) error {
	credsRaw, err := json.Marshal(v.Credentials)
	if err != nil {
		return fmt.Errorf("marshal verifier credentials: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifier_records
			(subject_id, credentials, authorized, revoked_at, revocation_reason,
			 successful_confirmations, auto_qualified_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (subject_id) DO UPDATE SET
			credentials = EXCLUDED.credentials,
			authorized = EXCLUDED.authorized,
			revoked_at = EXCLUDED.revoked_at,
			revocation_reason = EXCLUDED.revocation_reason,
			successful_confirmations = EXCLUDED.successful_confirmations,
			auto_qualified_reason = EXCLUDED.auto_qualified_reason`,
		v.SubjectID, credsRaw, v.Authorized, v.RevokedAt, v.RevocationReason,
		v.SuccessfulConfirmations, v.AutoQualifiedReason)
	if err != nil {
		return fmt.Errorf("put verifier record: %w", err)
	}
	return nil
}

func (s *PostgresStore) IncrementConfirmations(ctx context.Context, subjectID string, delta int) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO verifier_records (subject_id, successful_confirmations)
		VALUES ($1, $2)
		ON CONFLICT (subject_id) DO UPDATE SET
			successful_confirmations = verifier_records.successful_confirmations + EXCLUDED.successful_confirmations
		RETURNING successful_confirmations`, subjectID, delta)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("increment verifier confirmations: %w", err)
	}
	return count, nil
}
