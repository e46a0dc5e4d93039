package storage

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS guests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT UNIQUE,
    phone TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL UNIQUE,
    family TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT 'France',
    invited_to_mairie BOOLEAN NOT NULL DEFAULT 0,
    invited_to_vin_honneur BOOLEAN NOT NULL DEFAULT 0,
    invited_to_chabbat BOOLEAN NOT NULL DEFAULT 0,
    invited_to_houppa BOOLEAN NOT NULL DEFAULT 0,
    email_sent BOOLEAN NOT NULL DEFAULT 0,
    email_sent_date DATETIME,
    sms_sent BOOLEAN NOT NULL DEFAULT 0,
    sms_sent_date DATETIME,
    whatsapp_sent BOOLEAN NOT NULL DEFAULT 0,
    whatsapp_sent_date DATETIME,
    total_guests INTEGER CHECK (total_guests BETWEEN 1 AND 20),
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guests_name ON guests(last_name, first_name);

CREATE TABLE IF NOT EXISTS event_responses (
    guest_id INTEGER NOT NULL REFERENCES guests(id) ON DELETE CASCADE,
    event_name TEXT NOT NULL,
    will_attend BOOLEAN NOT NULL DEFAULT 0,
    plus_one INTEGER NOT NULL DEFAULT 0 CHECK (plus_one BETWEEN 0 AND 20),
    updated_at DATETIME NOT NULL,
    PRIMARY KEY (guest_id, event_name)
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guest_id INTEGER NOT NULL REFERENCES guests(id) ON DELETE CASCADE,
    message TEXT NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_guest ON messages(guest_id);

CREATE TABLE IF NOT EXISTS public_responses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    guests INTEGER NOT NULL DEFAULT 1,
    mairie BOOLEAN NOT NULL DEFAULT 0,
    vin_honneur BOOLEAN NOT NULL DEFAULT 0,
    chabbat BOOLEAN NOT NULL DEFAULT 0,
    houppa BOOLEAN NOT NULL DEFAULT 0,
    message TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS guests (
    id BIGSERIAL PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT UNIQUE,
    phone TEXT NOT NULL DEFAULT '',
    token TEXT NOT NULL UNIQUE,
    family TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT 'France',
    invited_to_mairie BOOLEAN NOT NULL DEFAULT FALSE,
    invited_to_vin_honneur BOOLEAN NOT NULL DEFAULT FALSE,
    invited_to_chabbat BOOLEAN NOT NULL DEFAULT FALSE,
    invited_to_houppa BOOLEAN NOT NULL DEFAULT FALSE,
    email_sent BOOLEAN NOT NULL DEFAULT FALSE,
    email_sent_date TIMESTAMPTZ,
    sms_sent BOOLEAN NOT NULL DEFAULT FALSE,
    sms_sent_date TIMESTAMPTZ,
    whatsapp_sent BOOLEAN NOT NULL DEFAULT FALSE,
    whatsapp_sent_date TIMESTAMPTZ,
    total_guests INTEGER CHECK (total_guests BETWEEN 1 AND 20),
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guests_name ON guests(last_name, first_name);

CREATE TABLE IF NOT EXISTS event_responses (
    guest_id BIGINT NOT NULL REFERENCES guests(id) ON DELETE CASCADE,
    event_name TEXT NOT NULL,
    will_attend BOOLEAN NOT NULL DEFAULT FALSE,
    plus_one INTEGER NOT NULL DEFAULT 0 CHECK (plus_one BETWEEN 0 AND 20),
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (guest_id, event_name)
);

CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    guest_id BIGINT NOT NULL REFERENCES guests(id) ON DELETE CASCADE,
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_guest ON messages(guest_id);

CREATE TABLE IF NOT EXISTS public_responses (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL,
    guests INTEGER NOT NULL DEFAULT 1,
    mairie BOOLEAN NOT NULL DEFAULT FALSE,
    vin_honneur BOOLEAN NOT NULL DEFAULT FALSE,
    chabbat BOOLEAN NOT NULL DEFAULT FALSE,
    houppa BOOLEAN NOT NULL DEFAULT FALSE,
    message TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);
`
