package quizengine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DeckFile is the on-disk YAML form of a deck
type DeckFile struct {
	Name  string         `yaml:"name"`
	Cards []SourceRecord `yaml:"cards"`
}

// LoadDeckFile reads and validates a YAML deck
func LoadDeckFile(path string) (*DeckFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck file %s: %w", path, err)
	}
	return ParseDeckFile(data)
}

// ParseDeckFile decodes a YAML deck. Cards without a type become short
// response cards.
func ParseDeckFile(data []byte) (*DeckFile, error) {
	var deck DeckFile
	if err := yaml.Unmarshal(data, &deck); err != nil {
		return nil, fmt.Errorf("failed to parse deck: %w", err)
	}

	deck.Name = strings.TrimSpace(deck.Name)
	if deck.Name == "" {
		return nil, fmt.Errorf("deck must have a name")
	}
	if len(deck.Cards) == 0 {
		return nil, fmt.Errorf("deck %q has no cards", deck.Name)
	}
	for i := range deck.Cards {
		card := &deck.Cards[i]
		if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
			return nil, fmt.Errorf("card %d of deck %q needs both front and back", i+1, deck.Name)
		}
		if card.Type == "" {
			card.Type = CardTypeShortResponse
		}
	}
	return &deck, nil
}

// ImportDeck writes a deck and its cards in one transaction. When a deck with
// the same name exists the cards are appended to it.
func (db *DB) ImportDeck(deck *DeckFile) (int64, error) {
	tx, err := db.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deckID int64
	err = tx.QueryRow("SELECT id FROM decks WHERE name = ?", deck.Name).Scan(&deckID)
	if err != nil {
		res, err := tx.Exec("INSERT INTO decks (name, created_at) VALUES (?, ?)", deck.Name, time.Now())
		if err != nil {
			return 0, fmt.Errorf("failed to create deck: %w", err)
		}
		if deckID, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to read deck id: %w", err)
		}
	}

	for _, card := range deck.Cards {
		_, err := tx.Exec(
			"INSERT INTO flashcards (deck_id, front, back, type) VALUES (?, ?, ?, ?)",
			deckID, card.Front, card.Back, card.Type,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create flashcard: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deck: %w", err)
	}
	VerboseLog("Imported %d cards into deck %q (%d)", len(deck.Cards), deck.Name, deckID)
	return deckID, nil
}
