// Package seed provides database seeding utilities for development and
// testing. Seeding is always an explicit command, never implicit at server
// startup.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"podium/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumRooms           int
	UsersPerRoom       int
	MessagesPerRoom    int
	ShouldClean        bool
	EnableAutoModRatio float64
}

var roomTopics = []string{
	"Keynote", "Hallway Track", "Workshop", "Lightning Talks", "Panel",
	"Sponsors", "Q&A", "Networking", "Unconference", "Career Corner",
	"Live Coding", "Office Hours", "Birds of a Feather", "Afterparty",
}

// Seeder populates the database with demo chat data.
type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewSeeder creates a new Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll deletes all chat data. Order matters for foreign keys.
func (s *Seeder) ClearAll() error {
	for _, table := range []string{
		"moderation_log_entries", "messages", "room_participants", "chat_rooms",
	} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// Run seeds rooms, participants, and message history.
func (s *Seeder) Run(opts Options) error {
	log.Printf("Seeding %d rooms with up to %d users and %d messages each...",
		opts.NumRooms, opts.UsersPerRoom, opts.MessagesPerRoom)

	rooms, err := s.seedRooms(opts)
	if err != nil {
		return fmt.Errorf("failed to seed rooms: %w", err)
	}
	log.Printf("✓ %d rooms created", len(rooms))

	total := 0
	for _, room := range rooms {
		userIDs, err := s.seedParticipants(room, opts.UsersPerRoom)
		if err != nil {
			return fmt.Errorf("failed to seed participants for room %d: %w", room.ID, err)
		}
		n, err := s.seedMessages(room, userIDs, opts.MessagesPerRoom)
		if err != nil {
			return fmt.Errorf("failed to seed messages for room %d: %w", room.ID, err)
		}
		total += n
	}
	log.Printf("✓ %d messages created", total)

	return nil
}

func (s *Seeder) seedRooms(opts Options) ([]*models.ChatRoom, error) {
	rooms := make([]*models.ChatRoom, 0, opts.NumRooms)
	for i := 0; i < opts.NumRooms; i++ {
		topic := roomTopics[i%len(roomTopics)]
		title := fmt.Sprintf("%s %d — %s", topic, i+1, gofakeit.HackerNoun())

		autoMod := models.AutoModConfig{}
		if s.rng.Float64() < opts.EnableAutoModRatio {
			autoMod = models.AutoModConfig{
				Enabled:         true,
				ProfanityFilter: true,
				SpamFilter:      true,
				LinkFilter:      s.rng.Intn(2) == 0,
				AutoDelete:      s.rng.Intn(4) == 0,
			}
		}

		room := models.NewChatRoom(uint(1+i/4), title, autoMod)
		if err := s.db.Create(room).Error; err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *Seeder) seedParticipants(room *models.ChatRoom, maxUsers int) ([]uint, error) {
	count := 2 + s.rng.Intn(maxUsers-1)
	userIDs := make([]uint, 0, count)
	for i := 0; i < count; i++ {
		userID := uint(1 + s.rng.Intn(maxUsers*10))
		role := models.RoleMember
		if i == 0 {
			role = models.RoleOwner
		} else if i == 1 {
			role = models.RoleModerator
		}

		p := &models.Participant{
			ChatRoomID: room.ID,
			UserID:     userID,
			Role:       role,
			JoinedAt:   time.Now().Add(-time.Duration(s.rng.Intn(72)) * time.Hour),
		}
		// Duplicate user ids for a room are possible from the random draw;
		// the composite key makes the insert a no-op.
		if err := s.db.Where("chat_room_id = ? AND user_id = ?", room.ID, userID).
			FirstOrCreate(p).Error; err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, nil
}

func (s *Seeder) seedMessages(room *models.ChatRoom, userIDs []uint, count int) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}

	var lastID string
	var lastAt time.Time
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		msg := &models.Message{
			ID:         uuid.NewString(),
			ChatRoomID: room.ID,
			UserID:     userIDs[s.rng.Intn(len(userIDs))],
			Content:    gofakeit.HipsterSentence(4 + s.rng.Intn(10)),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		// Occasional reply threads keep the history realistic.
		if lastID != "" && s.rng.Intn(5) == 0 {
			replyTo := lastID
			msg.ReplyToID = &replyTo
		}
		if err := s.db.Create(msg).Error; err != nil {
			return i, err
		}
		lastID = msg.ID
		lastAt = msg.CreatedAt
	}

	if lastID != "" {
		err := s.db.Model(&models.ChatRoom{}).Where("id = ?", room.ID).
			Updates(map[string]interface{}{
				"last_message_id":  lastID,
				"last_activity_at": lastAt,
			}).Error
		if err != nil {
			return count, err
		}
	}
	return count, nil
}
