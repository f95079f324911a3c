package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// InsertEntry persists a single committed entry. Callers are expected to
// have already validated the entry (internal/validator) before calling
// this — the store itself only enforces the uniqueness/ordering
// constraints a CHECK/PRIMARY KEY can express.
func (s *Store) InsertEntry(ctx context.Context, e *types.Entry) error {
	backlink := ""
	if e.Backlink != nil {
		backlink = string(*e.Backlink)
	}
	skiplink := ""
	if e.Skiplink != nil {
		skiplink = string(*e.Skiplink)
	}
	q := fmt.Sprintf(`INSERT INTO entries
		(author, log_id, seq_num, entry_hash, entry_bytes, payload_hash, payload_size, backlink, skiplink, signature)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))
	_, err := s.exec.ExecContext(ctx, q,
		e.PublicKey.String(), strconv.FormatUint(uint64(e.LogID), 10), strconv.FormatUint(uint64(e.SeqNum), 10),
		string(e.EntryHash), e.EncodedBytes, string(e.PayloadHash), strconv.FormatUint(e.PayloadSize, 10),
		backlink, skiplink, e.Signature,
	)
	if err != nil {
		return fmt.Errorf("store: insert entry: %w", err)
	}
	return nil
}

// GetEntry looks up an entry by its globally-unique entry hash, returning
// (nil, nil) if no entry with that hash has been committed yet.
func (s *Store) GetEntry(ctx context.Context, hash types.Hash) (*types.Entry, error) {
	q := fmt.Sprintf(`SELECT author, log_id, seq_num, entry_hash, entry_bytes, payload_hash, payload_size, backlink, skiplink, signature
		FROM entries WHERE entry_hash = %s`, s.ph(1))
	row := s.exec.QueryRowContext(ctx, q, string(hash))
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// AuthorForPayloadHash returns the public key of the entry carrying the
// operation whose encoded bytes hash to payloadHash. Since a document's id
// is exactly its create operation's operation_id, and operation_id and
// payload_hash are the same hash of the same bytes, this resolves a
// document's owning author without any dedicated index.
func (s *Store) AuthorForPayloadHash(ctx context.Context, payloadHash types.Hash) (types.PublicKey, bool, error) {
	q := fmt.Sprintf(`SELECT author FROM entries WHERE payload_hash = %s LIMIT 1`, s.ph(1))
	var author string
	err := s.exec.QueryRowContext(ctx, q, string(payloadHash)).Scan(&author)
	if err == sql.ErrNoRows {
		return types.PublicKey{}, false, nil
	}
	if err != nil {
		return types.PublicKey{}, false, fmt.Errorf("store: author for payload hash: %w", err)
	}
	pub, err := types.ParsePublicKey(author)
	if err != nil {
		return types.PublicKey{}, false, fmt.Errorf("store: author for payload hash: %w", err)
	}
	return pub, true, nil
}

// GetLatestEntry returns the highest seq_num entry committed so far for
// (public_key, log_id), or nil if the log has no entries yet.
func (s *Store) GetLatestEntry(ctx context.Context, publicKey types.PublicKey, logID types.LogID) (*types.Entry, error) {
	q := fmt.Sprintf(`SELECT author, log_id, seq_num, entry_hash, entry_bytes, payload_hash, payload_size, backlink, skiplink, signature
		FROM entries WHERE author = %s AND log_id = %s
		ORDER BY %s DESC LIMIT 1`, s.ph(1), s.ph(2), s.dialect.CastNumeric("seq_num"))
	row := s.exec.QueryRowContext(ctx, q, publicKey.String(), strconv.FormatUint(uint64(logID), 10))
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// GetEntriesNewerThan returns up to max entries in (public_key, log_id)
// with seq_num strictly greater than after, ordered by seq_num ascending —
// the core of the log-height replication strategy.
func (s *Store) GetEntriesNewerThan(ctx context.Context, publicKey types.PublicKey, logID types.LogID, after types.SeqNum, max int) ([]*types.Entry, error) {
	q := fmt.Sprintf(`SELECT author, log_id, seq_num, entry_hash, entry_bytes, payload_hash, payload_size, backlink, skiplink, signature
		FROM entries WHERE author = %s AND log_id = %s AND %s > %s
		ORDER BY %s ASC LIMIT %s`,
		s.ph(1), s.ph(2), s.dialect.CastNumeric("seq_num"), s.ph(3), s.dialect.CastNumeric("seq_num"), s.ph(4))
	rows, err := s.exec.QueryContext(ctx, q, publicKey.String(), strconv.FormatUint(uint64(logID), 10), strconv.FormatUint(uint64(after), 10), max)
	if err != nil {
		return nil, fmt.Errorf("store: get entries newer than: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LogHeight is one (author, log) pair's highest committed seq_num, the
// unit the replication engine's log-height strategy exchanges as a Have
// advertisement.
type LogHeight struct {
	PublicKey types.PublicKey
	LogID     types.LogID
	SeqNum    types.SeqNum
}

// LogHeights returns the current height of every log whose schema is in
// schemaIDs, regardless of whether any entries have landed yet (a log
// with no entries reports SeqNum 0, so a peer with any entries at all is
// recognized as ahead).
func (s *Store) LogHeights(ctx context.Context, schemaIDs []types.SchemaID) ([]LogHeight, error) {
	if len(schemaIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(schemaIDs))
	args := make([]any, len(schemaIDs))
	for i, id := range schemaIDs {
		placeholders[i] = s.ph(i + 1)
		args[i] = string(id)
	}
	q := fmt.Sprintf(`SELECT l.public_key, l.log_id,
			COALESCE((SELECT MAX(%s) FROM entries e WHERE e.author = l.public_key AND e.log_id = l.log_id), 0)
		FROM logs l WHERE l.schema IN (%s)`,
		s.dialect.CastNumeric("e.seq_num"), strings.Join(placeholders, ", "))
	rows, err := s.exec.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: log heights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []LogHeight
	for rows.Next() {
		var author, logID string
		var seqNum int64
		if err := rows.Scan(&author, &logID, &seqNum); err != nil {
			return nil, fmt.Errorf("store: scan log height: %w", err)
		}
		pub, err := types.ParsePublicKey(author)
		if err != nil {
			return nil, fmt.Errorf("store: log heights: %w", err)
		}
		lid, err := strconv.ParseUint(logID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("store: log heights: %w", err)
		}
		out = append(out, LogHeight{PublicKey: pub, LogID: types.LogID(lid), SeqNum: types.SeqNum(seqNum)})
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*types.Entry, error) {
	return scanEntryRows(row)
}

func scanEntryRows(row rowScanner) (*types.Entry, error) {
	var (
		author, logID, seqNum, entryHash, payloadHash, payloadSize, backlink, skiplink string
		entryBytes, signature                                                         []byte
	)
	if err := row.Scan(&author, &logID, &seqNum, &entryHash, &entryBytes, &payloadHash, &payloadSize, &backlink, &skiplink, &signature); err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}
	pub, err := types.ParsePublicKey(author)
	if err != nil {
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}
	lid, err := strconv.ParseUint(logID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}
	sn, err := strconv.ParseUint(seqNum, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}
	ps, err := strconv.ParseUint(payloadSize, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("store: scan entry: %w", err)
	}
	e := &types.Entry{
		PublicKey:    pub,
		LogID:        types.LogID(lid),
		SeqNum:       types.SeqNum(sn),
		EntryHash:    types.Hash(entryHash),
		EncodedBytes: entryBytes,
		PayloadHash:  types.Hash(payloadHash),
		PayloadSize:  ps,
		Signature:    signature,
	}
	if backlink != "" {
		h := types.Hash(backlink)
		e.Backlink = &h
	}
	if skiplink != "" {
		h := types.Hash(skiplink)
		e.Skiplink = &h
	}
	return e, nil
}
