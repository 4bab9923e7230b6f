// Command main runs the database seeder for Podium.
package main

import (
	"flag"
	"log"

	"podium/internal/config"
	"podium/internal/database"
	"podium/internal/seed"
)

func main() {
	numRooms := flag.Int("rooms", 12, "Number of chat rooms to create")
	usersPerRoom := flag.Int("users", 20, "Maximum participants per room")
	messagesPerRoom := flag.Int("messages", 100, "Messages per room")
	shouldClean := flag.Bool("clean", true, "Clean chat tables before seeding")
	flag.Parse()

	log.Println("🌱 Podium Chat Seeder")
	log.Println("=====================")
	log.Printf("Target: %d rooms, up to %d users and %d messages each, clean=%v\n",
		*numRooms, *usersPerRoom, *messagesPerRoom, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(database.DB)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	if err := s.Run(seed.Options{
		NumRooms:           *numRooms,
		UsersPerRoom:       *usersPerRoom,
		MessagesPerRoom:    *messagesPerRoom,
		EnableAutoModRatio: 0.5,
	}); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Demo chat rooms are ready.")
}
