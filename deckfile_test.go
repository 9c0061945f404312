package quizengine

import (
	"context"
	"strings"
	"testing"
)

const sampleDeck = `
name: Solar System
cards:
  - front: Largest planet?
    back: Jupiter
  - front: Closest planet to the sun?
    back: Mercury
    type: multiple_choice
`

func TestParseDeckFile(t *testing.T) {
	deck, err := ParseDeckFile([]byte(sampleDeck))
	if err != nil {
		t.Fatalf("ParseDeckFile: %v", err)
	}
	if deck.Name != "Solar System" || len(deck.Cards) != 2 {
		t.Fatalf("unexpected deck %+v", deck)
	}
	if deck.Cards[0].Type != CardTypeShortResponse {
		t.Fatalf("missing type should default to short response, got %q", deck.Cards[0].Type)
	}
	if !deck.Cards[1].ToRawRecord().IsMultipleChoice {
		t.Fatal("second card should map to a multiple choice record")
	}
}

func TestParseDeckFileRejectsInvalid(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"no name", "cards:\n  - front: a\n    back: b\n", "name"},
		{"no cards", "name: Empty\n", "no cards"},
		{"missing back", "name: X\ncards:\n  - front: a\n", "front and back"},
		{"bad yaml", "name: [unterminated", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDeckFile([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestImportDeckAppends(t *testing.T) {
	db := openTestDB(t)
	deck, err := ParseDeckFile([]byte(sampleDeck))
	if err != nil {
		t.Fatalf("ParseDeckFile: %v", err)
	}

	first, err := db.ImportDeck(deck)
	if err != nil {
		t.Fatalf("ImportDeck: %v", err)
	}
	second, err := db.ImportDeck(deck)
	if err != nil {
		t.Fatalf("ImportDeck again: %v", err)
	}
	if first != second {
		t.Fatalf("reimport created a new deck: %d != %d", first, second)
	}

	cards, err := db.Flashcards(context.Background(), first)
	if err != nil {
		t.Fatalf("Flashcards: %v", err)
	}
	if len(cards) != 4 {
		t.Fatalf("got %d cards, want 4", len(cards))
	}
}

func TestToRawRecord(t *testing.T) {
	for _, typ := range []string{"multiple_choice", "mc", "MC", "multiple-choice", "multipleChoice"} {
		if !(SourceRecord{Type: typ}).ToRawRecord().IsMultipleChoice {
			t.Errorf("type %q should be multiple choice", typ)
		}
	}
	rec := SourceRecord{Front: "Q", Back: "A", Type: "short_response"}.ToRawRecord()
	if rec.IsMultipleChoice || rec.Question != "Q" || rec.RelevantText != "A" {
		t.Fatalf("unexpected record %+v", rec)
	}
}
