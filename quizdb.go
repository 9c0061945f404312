package quizengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SourceStore supplies the flashcards a session draws its questions from
type SourceStore interface {
	Flashcards(ctx context.Context, deckID int64) ([]SourceRecord, error)
}

// ResultStore records graded attempts
type ResultStore interface {
	SaveResult(ctx context.Context, rec *ResultRecord) error
}

// DB represents a quiz database connection
type DB struct {
	db *sql.DB
}

// Deck represents a deck in the database
type Deck struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	CardCount int       `json:"card_count"`
}

// ResultRecord is one graded attempt as stored in the database
type ResultRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	DeckID    int64      `json:"deck_id"`
	Attempt   int        `json:"attempt"`
	Result    QuizResult `json:"result"`
	CreatedAt time.Time  `json:"created_at"`
}

// OpenDB opens a new database connection
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{db: db}, nil
}

// CloseDB closes the database connection
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS decks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS flashcards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			deck_id INTEGER NOT NULL,
			front TEXT NOT NULL,
			back TEXT NOT NULL,
			type TEXT NOT NULL,
			FOREIGN KEY (deck_id) REFERENCES decks(id)
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			deck_id INTEGER NOT NULL,
			attempt INTEGER NOT NULL,
			correct_count INTEGER NOT NULL,
			incorrect_count INTEGER NOT NULL,
			total INTEGER NOT NULL,
			grade REAL NOT NULL,
			statuses TEXT NOT NULL,
			timed_out INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (deck_id) REFERENCES decks(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// CreateDeck creates a new deck and returns its ID
func (db *DB) CreateDeck(name string) (int64, error) {
	res, err := db.db.Exec("INSERT INTO decks (name, created_at) VALUES (?, ?)", name, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to create deck: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read deck id: %w", err)
	}
	return id, nil
}

// GetDeck retrieves a deck by ID
func (db *DB) GetDeck(id int64) (*Deck, error) {
	return db.scanDeck(db.db.QueryRow(
		`SELECT d.id, d.name, d.created_at, COUNT(f.id) FROM decks d
		 LEFT JOIN flashcards f ON f.deck_id = d.id WHERE d.id = ? GROUP BY d.id`,
		id,
	), fmt.Sprintf("%d", id))
}

// GetDeckByName retrieves a deck by its unique name
func (db *DB) GetDeckByName(name string) (*Deck, error) {
	return db.scanDeck(db.db.QueryRow(
		`SELECT d.id, d.name, d.created_at, COUNT(f.id) FROM decks d
		 LEFT JOIN flashcards f ON f.deck_id = d.id WHERE d.name = ? GROUP BY d.id`,
		name,
	), name)
}

func (db *DB) scanDeck(row *sql.Row, key string) (*Deck, error) {
	var deck Deck
	err := row.Scan(&deck.ID, &deck.Name, &deck.CreatedAt, &deck.CardCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("deck not found: %s", key)
		}
		return nil, fmt.Errorf("failed to get deck: %w", err)
	}
	return &deck, nil
}

// ListDecks retrieves all decks with their card counts
func (db *DB) ListDecks() ([]Deck, error) {
	rows, err := db.db.Query(
		`SELECT d.id, d.name, d.created_at, COUNT(f.id) FROM decks d
		 LEFT JOIN flashcards f ON f.deck_id = d.id GROUP BY d.id ORDER BY d.name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get decks: %w", err)
	}
	defer rows.Close()

	var decks []Deck
	for rows.Next() {
		var deck Deck
		if err := rows.Scan(&deck.ID, &deck.Name, &deck.CreatedAt, &deck.CardCount); err != nil {
			return nil, fmt.Errorf("failed to scan deck: %w", err)
		}
		decks = append(decks, deck)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating decks: %w", err)
	}
	return decks, nil
}

// AddFlashcard appends a card to a deck
func (db *DB) AddFlashcard(deckID int64, card SourceRecord) error {
	_, err := db.db.Exec(
		"INSERT INTO flashcards (deck_id, front, back, type) VALUES (?, ?, ?, ?)",
		deckID, card.Front, card.Back, card.Type,
	)
	if err != nil {
		return fmt.Errorf("failed to create flashcard: %w", err)
	}
	return nil
}

// Flashcards retrieves every card of a deck in insertion order
func (db *DB) Flashcards(ctx context.Context, deckID int64) ([]SourceRecord, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT front, back, type FROM flashcards WHERE deck_id = ? ORDER BY id",
		deckID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcards: %w", err)
	}
	defer rows.Close()

	var cards []SourceRecord
	for rows.Next() {
		var card SourceRecord
		if err := rows.Scan(&card.Front, &card.Back, &card.Type); err != nil {
			return nil, fmt.Errorf("failed to scan flashcard: %w", err)
		}
		cards = append(cards, card)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flashcards: %w", err)
	}
	return cards, nil
}

// SaveResult stores a graded attempt
func (db *DB) SaveResult(ctx context.Context, rec *ResultRecord) error {
	statuses, err := StatusesToJSON(rec.Result.PerQuestionStatus)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err = db.db.ExecContext(ctx,
		`INSERT INTO results (id, session_id, deck_id, attempt, correct_count, incorrect_count, total, grade, statuses, timed_out, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.DeckID, rec.Attempt,
		rec.Result.CorrectCount, rec.Result.IncorrectCount, rec.Result.Total, rec.Result.Grade,
		statuses, rec.Result.TimedOut, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ListResults retrieves results for a deck, newest first, optionally limited
func (db *DB) ListResults(deckID int64, limit int) ([]ResultRecord, error) {
	query := `SELECT id, session_id, deck_id, attempt, correct_count, incorrect_count, total, grade, statuses, timed_out, created_at
		FROM results WHERE deck_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := db.db.Query(query, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []ResultRecord
	for rows.Next() {
		var (
			rec      ResultRecord
			statuses string
		)
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.DeckID, &rec.Attempt,
			&rec.Result.CorrectCount, &rec.Result.IncorrectCount, &rec.Result.Total, &rec.Result.Grade,
			&statuses, &rec.Result.TimedOut, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		rec.Result.PerQuestionStatus, err = JSONToStatuses(statuses)
		if err != nil {
			return nil, err
		}
		rec.Result.GradedAt = rec.CreatedAt
		results = append(results, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// StatusesToJSON converts per-question statuses to a JSON string
func StatusesToJSON(statuses []string) (string, error) {
	data, err := json.Marshal(statuses)
	if err != nil {
		return "", fmt.Errorf("failed to marshal statuses: %w", err)
	}
	return string(data), nil
}

// JSONToStatuses converts a JSON string back to per-question statuses
func JSONToStatuses(statusesJSON string) ([]string, error) {
	var statuses []string
	if err := json.Unmarshal([]byte(statusesJSON), &statuses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal statuses: %w", err)
	}
	return statuses, nil
}
