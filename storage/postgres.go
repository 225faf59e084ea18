package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"squash/domain"
	"squash/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// "23503" is the PostgreSQL error code for foreign_key_violation
const foreignKeyViolation = "23503"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresRepo(ctx context.Context, connString string) (*PostgresRepo, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
	}
	return &PostgresRepo{pool: pool}, nil
}

func (pgr *PostgresRepo) Close() {
	pgr.pool.Close()
}

func wrap(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.UnexpectedDatabaseError, err)
}

func (pgr *PostgresRepo) CreateLobby(ctx context.Context, rec game.LobbyRecord) error {
	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO lobbies(key, lobby_id, name, mode, max_players, private, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)`,
		rec.Key, rec.LobbyId, rec.Name, string(rec.Mode), rec.MaxPlayers, rec.Private, rec.CreatedAt,
	)
	if err != nil {
		return wrap(err)
	}
	return nil
}

func (pgr *PostgresRepo) AddMember(ctx context.Context, lobbyKey uuid.UUID, playerId string, userId *string) error {
	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO lobby_members(lobby_key, player_id, user_id) VALUES($1, $2, $3)
		ON CONFLICT (lobby_key, player_id) DO UPDATE SET user_id = EXCLUDED.user_id, joined_at = now()`,
		lobbyKey, playerId, userId,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return domain.ErrLobbyNotPersisted
		}
		return wrap(err)
	}
	return nil
}

func (pgr *PostgresRepo) RemoveMember(ctx context.Context, lobbyKey uuid.UUID, playerId string) error {
	_, err := pgr.pool.Exec(ctx, "DELETE FROM lobby_members WHERE lobby_key = $1 AND player_id = $2", lobbyKey, playerId)
	if err != nil {
		return wrap(err)
	}
	return nil
}

func (pgr *PostgresRepo) DeleteLobby(ctx context.Context, lobbyKey uuid.UUID) error {
	_, err := pgr.pool.Exec(ctx, "DELETE FROM lobbies WHERE key = $1", lobbyKey)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// SyncLobby rewrites one lobby row and its member list in a single
// transaction.
func (pgr *PostgresRepo) SyncLobby(ctx context.Context, rec game.LobbyRecord, members []game.MemberRecord) error {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.PlayerId)
	}
	err := pgx.BeginFunc(ctx, pgr.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO lobbies(key, lobby_id, name, mode, max_players, private, created_at)
			VALUES($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (key) DO UPDATE SET
				name = EXCLUDED.name,
				max_players = EXCLUDED.max_players,
				private = EXCLUDED.private`,
			rec.Key, rec.LobbyId, rec.Name, string(rec.Mode), rec.MaxPlayers, rec.Private, rec.CreatedAt,
		)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"DELETE FROM lobby_members WHERE lobby_key = $1 AND NOT (player_id = ANY($2))", rec.Key, ids)
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, m := range members {
			batch.Queue(
				`INSERT INTO lobby_members(lobby_key, player_id, user_id) VALUES($1, $2, $3)
				ON CONFLICT (lobby_key, player_id) DO UPDATE SET user_id = EXCLUDED.user_id`,
				rec.Key, m.PlayerId, m.UserId,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return wrap(err)
	}
	return nil
}

// ReconcileLobbies deletes every persisted lobby created before the cutoff
// that is not in live, and reports how many rows went.
func (pgr *PostgresRepo) ReconcileLobbies(ctx context.Context, live []uuid.UUID, before time.Time) (int64, error) {
	if live == nil {
		live = []uuid.UUID{}
	}
	tag, err := pgr.pool.Exec(ctx, "DELETE FROM lobbies WHERE created_at < $2 AND NOT (key = ANY($1))", live, before)
	if err != nil {
		return 0, wrap(err)
	}
	return tag.RowsAffected(), nil
}

type participantRow struct {
	PlayerId string  `json:"playerId"`
	UserId   *string `json:"userId,omitempty"`
	Name     string  `json:"name"`
}

func participantsJSON(ps []game.Participant) ([]byte, error) {
	rows := make([]participantRow, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, participantRow{PlayerId: p.PlayerId, UserId: p.UserId, Name: p.Name})
	}
	return json.Marshal(rows)
}

func (pgr *PostgresRepo) OpenMatch(ctx context.Context, rec game.MatchRecord) error {
	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO matches(key, lobby_key, started_at) VALUES($1, $2, $3)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.LobbyKey, rec.StartedAt,
	)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// CloseMatch writes the final tally. It inserts the row when the opening
// write never landed.
func (pgr *PostgresRepo) CloseMatch(ctx context.Context, rec game.MatchRecord) error {
	participants, err := participantsJSON(rec.Participants)
	if err != nil {
		return err
	}
	_, err = pgr.pool.Exec(ctx,
		`INSERT INTO matches(key, lobby_key, started_at, ended_at, games, wins, best_score, participants)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			games = EXCLUDED.games,
			wins = EXCLUDED.wins,
			best_score = EXCLUDED.best_score,
			participants = EXCLUDED.participants`,
		rec.Key, rec.LobbyKey, rec.StartedAt, rec.EndedAt, rec.Games, rec.Wins, rec.BestScore, string(participants),
	)
	if err != nil {
		return wrap(err)
	}
	return nil
}

func (pgr *PostgresRepo) SaveReplay(ctx context.Context, rec game.ReplayRecord) error {
	var matchKey *uuid.UUID
	if rec.MatchKey != uuid.Nil {
		matchKey = &rec.MatchKey
	}
	_, err := pgr.pool.Exec(ctx,
		`INSERT INTO replays(id, match_key, lobby_key, outcome, frame_count, data, recorded_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)`,
		rec.Id, matchKey, rec.LobbyKey, string(rec.Outcome), rec.FrameCount, rec.Data, rec.RecordedAt,
	)
	if err != nil {
		return wrap(err)
	}
	return nil
}

// Replay loads one stored recording.
func (pgr *PostgresRepo) Replay(ctx context.Context, id string) (game.ReplayRecord, error) {
	rec := game.ReplayRecord{Id: id}
	var matchKey *uuid.UUID
	var outcome string

	row := pgr.pool.QueryRow(ctx,
		"SELECT match_key, lobby_key, outcome, frame_count, data, recorded_at FROM replays WHERE id = $1", id)
	err := row.Scan(&matchKey, &rec.LobbyKey, &outcome, &rec.FrameCount, &rec.Data, &rec.RecordedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.ReplayRecord{}, domain.ErrReplayNotFound
		}
		return game.ReplayRecord{}, wrap(err)
	}
	if matchKey != nil {
		rec.MatchKey = *matchKey
	}
	rec.Outcome = game.Phase(outcome)
	return rec, nil
}
