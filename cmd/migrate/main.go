package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"leadflow/internal/migrations"
	"leadflow/internal/security"
)

func main() {
	dbPath := flag.String("db", "./leadflow.db", "Path to the database file")
	list := flag.Bool("list", false, "List embedded migrations and exit")
	flag.Parse()

	if *list {
		all, err := migrations.All()
		if err != nil {
			log.Fatalf("Failed to load migrations: %v", err)
		}
		for _, m := range all {
			fmt.Printf("%04d %s\n", m.Version, m.Name)
		}
		return
	}

	if err := security.ValidateFilePath(*dbPath); err != nil {
		log.Fatalf("Invalid database path: %v", err)
	}
	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		log.Fatalf("Database file not found: %s", *dbPath)
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(context.Background(), db)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	if len(applied) == 0 {
		fmt.Println("Schema is up to date")
		return
	}
	for _, v := range applied {
		fmt.Printf("Applied migration %04d\n", v)
	}
	fmt.Println("Database schema updated. You can now restart Leadflow.")
}
