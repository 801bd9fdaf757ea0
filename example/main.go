package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relmap/relmap"
)

type Account struct {
	ID        string `db:"id,pk"`
	Email     string
	CreatedAt time.Time
}

func main() {
	ctx := context.Background()

	// 1) Open an in-memory database and declare the models.
	conn, err := relmap.Open(
		relmap.Config{Dialect: "sqlite", Database: ":memory:"},
		relmap.WithModels(&Account{}),
	)
	if err != nil {
		panic(fmt.Errorf("open: %w", err))
	}
	defer conn.Close()

	sess := conn.Session()
	defer sess.Close()

	// 2) Create the declared tables.
	if err := sess.CreateAll(ctx); err != nil {
		panic(fmt.Errorf("create tables: %w", err))
	}
	fmt.Println("✅ Tables created")

	// 3) Insert an account inside a transaction scope.
	id := uuid.New().String()
	err = sess.Transaction(func(s *relmap.Session) error {
		_, err := s.Insert(&Account{}, map[string]any{
			"id":         id,
			"email":      "alice@example.com",
			"created_at": time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		panic(fmt.Errorf("insert account: %w", err))
	}
	fmt.Printf("✅ Created account %s\n", id)

	// 4) Fetch it back by key and normalize.
	entity, err := sess.GetByKey(ctx, &Account{}, id)
	if err != nil {
		panic(fmt.Errorf("fetch account: %w", err))
	}
	m, err := relmap.Normalize(entity)
	if err != nil {
		panic(fmt.Errorf("normalize: %w", err))
	}
	fmt.Printf("✅ Fetched account: %v\n", m)

	// 5) Introspect what we just built.
	tables, err := conn.Inspector().ListTables(ctx, "")
	if err != nil {
		panic(fmt.Errorf("list tables: %w", err))
	}
	fmt.Printf("✅ Tables: %v\n", tables)
}
