package db

// One row per (characters, type) entry, one child table per repeatable
// attribute, and one join table per composition edge kind. Table names are
// fixed at compile time; request input never reaches SQL unparameterized.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  id INTEGER NOT NULL,
  first_unlocked DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_studied DATETIME,
  correct INTEGER NOT NULL DEFAULT 0,
  wrong INTEGER NOT NULL DEFAULT 0,
  current_streak INTEGER NOT NULL DEFAULT 0,
  longest_streak INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (characters, type)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_id ON entries(id);

CREATE TABLE IF NOT EXISTS meanings (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS readings (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS notes (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS sources (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS word_classes (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  value TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS sentences (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  jp TEXT NOT NULL,
  en TEXT NOT NULL,
  simplified TEXT NOT NULL DEFAULT '',
  vocab TEXT NOT NULL DEFAULT '[]',
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS pitch_accents (
  characters TEXT NOT NULL,
  type TEXT NOT NULL,
  position INTEGER NOT NULL,
  reading TEXT NOT NULL,
  pattern TEXT NOT NULL,
  PRIMARY KEY (characters, type, position)
);

CREATE TABLE IF NOT EXISTS radical_composition (
  kanji TEXT NOT NULL,
  radical TEXT NOT NULL,
  PRIMARY KEY (kanji, radical)
);

CREATE INDEX IF NOT EXISTS idx_radical_composition_radical ON radical_composition(radical);

CREATE TABLE IF NOT EXISTS vocab_composition (
  vocab TEXT NOT NULL,
  kanji TEXT NOT NULL,
  PRIMARY KEY (vocab, kanji)
);

CREATE INDEX IF NOT EXISTS idx_vocab_composition_kanji ON vocab_composition(kanji)
`
