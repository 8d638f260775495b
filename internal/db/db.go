package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and makes sure every table the service uses exists
func Init(dsn string) {
	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("unable to ping database")
	}

	log.Info().Msg("connected to Postgres")

	ensureUsersTable()
	ensureTradeTables()
	ensureMessagingTables()
	ensureNotificationsTable()
	ensureXPTable()
}

// Close releases the pool
func Close() {
	if Conn != nil {
		Conn.Close()
	}
}

func exec(name, ddl string) {
	if _, err := Conn.Exec(context.Background(), ddl); err != nil {
		log.Error().Err(err).Str("schema", name).Msg("schema bootstrap failed")
		return
	}
	log.Debug().Str("schema", name).Msg("schema ensured")
}

// ensureUsersTable creates users and backfills is_active on older databases
func ensureUsersTable() {
	exec("users", `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            bio TEXT NOT NULL DEFAULT '',
            skills TEXT[] NOT NULL DEFAULT '{}',
            avatar_url TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        ALTER TABLE users ADD COLUMN IF NOT EXISTS is_active BOOLEAN DEFAULT TRUE;
        ALTER TABLE users ADD COLUMN IF NOT EXISTS avatar_url TEXT NOT NULL DEFAULT '';
        UPDATE users SET is_active = TRUE WHERE is_active IS NULL;
    `)
}

// ensureTradeTables creates the trade aggregate tables. Per-participant rows
// are keyed by (request_id, user_id).
func ensureTradeTables() {
	exec("trade_requests", `
        CREATE TABLE IF NOT EXISTS trade_requests (
            id UUID PRIMARY KEY,
            owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            skill_needed TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            deadline DATE NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('posted','accepted','finalizing','active','completed','cancelled')),
            partner_id UUID NULL REFERENCES users(id) ON DELETE SET NULL,
            accepted_interest_id UUID NULL,
            channel_id UUID NULL,
            archived BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_trade_requests_status_created ON trade_requests(status, created_at DESC);
        CREATE INDEX IF NOT EXISTS idx_trade_requests_owner ON trade_requests(owner_id);
        CREATE INDEX IF NOT EXISTS idx_trade_requests_partner ON trade_requests(partner_id);
    `)
	exec("trade_interests", `
        CREATE TABLE IF NOT EXISTS trade_interests (
            id UUID PRIMARY KEY,
            request_id UUID NOT NULL REFERENCES trade_requests(id) ON DELETE CASCADE,
            responder_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            skill_offered TEXT NOT NULL,
            status TEXT NOT NULL CHECK (status IN ('pending','accepted','declined')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_trade_interests_request ON trade_interests(request_id);
        CREATE UNIQUE INDEX IF NOT EXISTS uq_trade_interests_live
            ON trade_interests(request_id, responder_id) WHERE status <> 'declined';
        CREATE UNIQUE INDEX IF NOT EXISTS uq_trade_interests_accepted
            ON trade_interests(request_id) WHERE status = 'accepted';
    `)
	exec("trade_details", `
        CREATE TABLE IF NOT EXISTS trade_details (
            request_id UUID NOT NULL REFERENCES trade_requests(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            details JSONB NOT NULL,
            submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (request_id, user_id)
        );
    `)
	exec("trade_evaluations", `
        CREATE TABLE IF NOT EXISTS trade_evaluations (
            request_id UUID PRIMARY KEY REFERENCES trade_requests(id) ON DELETE CASCADE,
            assessment JSONB NOT NULL,
            evaluated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `)
	exec("trade_proofs", `
        CREATE TABLE IF NOT EXISTS trade_proofs (
            request_id UUID NOT NULL REFERENCES trade_requests(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            state TEXT NOT NULL CHECK (state IN ('not_submitted','submitted','approved')),
            files JSONB NOT NULL DEFAULT '[]',
            updated_at TIMESTAMPTZ NULL,
            PRIMARY KEY (request_id, user_id)
        );
    `)
	exec("trade_ratings", `
        CREATE TABLE IF NOT EXISTS trade_ratings (
            request_id UUID NOT NULL REFERENCES trade_requests(id) ON DELETE CASCADE,
            rater_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            ratee_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
            feedback TEXT NOT NULL DEFAULT '',
            submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (request_id, rater_id)
        );
        CREATE INDEX IF NOT EXISTS idx_trade_ratings_ratee ON trade_ratings(ratee_id);
    `)
}

// ensureMessagingTables creates one conversation per trade request plus its messages
func ensureMessagingTables() {
	exec("conversations", `
        CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            request_id UUID NOT NULL UNIQUE REFERENCES trade_requests(id) ON DELETE CASCADE,
            user_a UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            user_b UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a);
        CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b);
    `)
	exec("messages", `
        CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            body TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            read_at TIMESTAMPTZ NULL
        );
        CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages(conversation_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(conversation_id) WHERE read_at IS NULL;
    `)
}

// ensureNotificationsTable creates the in-app notifications written by the alerts worker
func ensureNotificationsTable() {
	exec("notifications", `
        CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            type TEXT NOT NULL,
            title TEXT NOT NULL,
            body TEXT,
            reference UUID NULL,
            metadata JSONB NULL,
            created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
            read_at TIMESTAMP WITH TIME ZONE NULL
        );
        CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at);
        CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE read_at IS NULL;
    `)
}

// ensureXPTable creates the XP ledger. Completion awards are unique per
// (user, request); manual grants carry no request id.
func ensureXPTable() {
	exec("xp_awards", `
        CREATE TABLE IF NOT EXISTS xp_awards (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            request_id UUID NULL REFERENCES trade_requests(id) ON DELETE SET NULL,
            amount BIGINT NOT NULL CHECK (amount >= 0),
            reason TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE UNIQUE INDEX IF NOT EXISTS uq_xp_awards_user_request
            ON xp_awards(user_id, request_id) WHERE request_id IS NOT NULL;
        CREATE INDEX IF NOT EXISTS idx_xp_awards_user_created ON xp_awards(user_id, created_at DESC);
    `)
}
