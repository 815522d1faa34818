package db

import (
	"context"
	"fmt"
)

// DemoPassword is the plaintext password of every seeded demo account.
const DemoPassword = "Barter#2024"

type demoMember struct {
	email       string
	displayName string
	location    string
	items       []string
}

var demoMembers = []demoMember{
	{
		email:       "maria@barter.local",
		displayName: "María López",
		location:    "Bogotá",
		items:       []string{"Cámara analógica Pentax K1000", "Bicicleta urbana de aluminio"},
	},
	{
		email:       "carlos@barter.local",
		displayName: "Carlos Ramírez",
		location:    "Medellín",
		items:       []string{"Guitarra acústica Yamaha", "Colección de libros de programación"},
	},
	{
		email:       "lucia@barter.local",
		displayName: "Lucía Fernández",
		location:    "Cali",
		items:       []string{"Set de macetas de cerámica", "Clases de acuarela"},
	},
}

type SeedResult struct {
	Skipped  bool
	Profiles int
	Items    int
}

// SeedDemoData fills an empty database with demo members and their items so
// trades can be proposed right away. It does nothing once any profile exists.
func SeedDemoData(ctx context.Context, database *DB, passwordHash string) (SeedResult, error) {
	var profiles int
	if err := database.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&profiles); err != nil {
		return SeedResult{}, fmt.Errorf("counting profiles: %w", err)
	}
	if profiles > 0 {
		return SeedResult{Skipped: true}, nil
	}

	accounts := NewAccountRepository(database)
	items := NewItemRepository(database)

	var result SeedResult
	for _, m := range demoMembers {
		_, profile, err := accounts.CreateWithProfile(ctx, m.email, passwordHash, m.displayName, m.location)
		if err != nil {
			return result, fmt.Errorf("seeding %s: %w", m.email, err)
		}
		result.Profiles++

		for _, title := range m.items {
			if _, err := items.Create(ctx, profile.ID, title); err != nil {
				return result, fmt.Errorf("seeding item %q: %w", title, err)
			}
			result.Items++
		}
	}
	return result, nil
}
