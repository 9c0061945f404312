package main

import (
	"flag"
	"fmt"
	"log"

	"quizengine"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		dbPath     = flag.String("db", "", "Path to SQLite database (overrides config)")
		list       = flag.Bool("list", false, "List decks after importing")
		verbose    = flag.Bool("verbose", false, "Enable verbose debugging output")
	)
	flag.Parse()

	quizengine.SetVerbose(*verbose)

	path := *dbPath
	if path == "" {
		// Importing needs no collaborators, so a missing API key is fine here.
		cfg := quizengine.DefaultConfig()
		if *configPath != "" {
			loaded, err := quizengine.LoadConfig(*configPath)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}
			cfg = loaded
		}
		path = cfg.DBPath
	}

	db, err := quizengine.OpenDB(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	if flag.NArg() == 0 && !*list {
		log.Fatal("Usage: deckimport [-db quiz.db] deck.yaml [more.yaml ...]")
	}

	for _, file := range flag.Args() {
		deck, err := quizengine.LoadDeckFile(file)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", file, err)
		}
		id, err := db.ImportDeck(deck)
		if err != nil {
			log.Fatalf("Failed to import %s: %v", file, err)
		}
		log.Printf("Imported %d cards from %s into deck %q (id %d)", len(deck.Cards), file, deck.Name, id)
	}

	if *list {
		decks, err := db.ListDecks()
		if err != nil {
			log.Fatalf("Failed to list decks: %v", err)
		}
		for _, d := range decks {
			fmt.Printf("%4d  %-40s %d cards\n", d.ID, d.Name, d.CardCount)
		}
	}
}
