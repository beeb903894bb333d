package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"agendei/internal/database"
	"agendei/internal/docstore"
	"agendei/internal/domain"
	"agendei/internal/service"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/agendei.db", "path to sqlite db")
		mongoURI    = flag.String("mongo-uri", "", "seed a mongo database instead of sqlite")
		mongoDB     = flag.String("mongo-db", "agendei", "mongo database name")
	)
	flag.Parse()

	catalog, err := service.LoadCatalog(*catalogPath)
	if err != nil {
		return err
	}
	if len(catalog.Businesses) == 0 {
		return fmt.Errorf("no businesses in %s", *catalogPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo domain.Repository
	if *mongoURI != "" {
		repo, err = docstore.Connect(ctx, *mongoURI, *mongoDB, &logger)
	} else {
		repo, err = database.NewDB(*dbPath, &logger)
	}
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer repo.Close()

	created, err := service.SeedCatalog(ctx, repo, catalog, &logger)
	if err != nil {
		return err
	}

	logger.Info().
		Int("created", created).
		Int("skipped", len(catalog.Businesses)-created).
		Msg("Catalog seed finished")
	return nil
}
