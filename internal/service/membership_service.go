// Package service provides application business logic for rooms, membership,
// and messaging.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"podium/internal/middleware"
	"podium/internal/models"
	"podium/internal/repository"

	"gorm.io/gorm"
)

// MembershipService authorizes and tracks which users may join or leave a
// room and persists ban/mute state. All participant mutations target the
// single row keyed by (room, user).
type MembershipService struct {
	roomRepo repository.RoomRepository
}

// NewMembershipService returns a new MembershipService.
func NewMembershipService(roomRepo repository.RoomRepository) *MembershipService {
	return &MembershipService{roomRepo: roomRepo}
}

// GetRoomsForUser returns the rooms where the user has an active entry and
// the room is chat-enabled and not archived.
func (s *MembershipService) GetRoomsForUser(ctx context.Context, userID uint) ([]*models.ChatRoom, error) {
	return s.roomRepo.GetRoomsForUser(ctx, userID)
}

// GetRoom loads a room with its participants.
func (s *MembershipService) GetRoom(ctx context.Context, roomID uint) (*models.ChatRoom, error) {
	room, err := s.roomRepo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	return room, nil
}

// CanJoin reports whether the user may join the room: a participant entry
// exists, is not banned, and has not left.
func (s *MembershipService) CanJoin(ctx context.Context, userID, roomID uint) (bool, error) {
	p, err := s.roomRepo.GetParticipant(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	return p.Active(), nil
}

// AddParticipant registers the user in the room. Idempotent: an existing
// active entry is left untouched, a left entry is reactivated by clearing
// LeftAt, and a banned entry refuses with PermissionDenied.
func (s *MembershipService) AddParticipant(ctx context.Context, userID, roomID uint) error {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return err
	}

	existing, err := s.roomRepo.GetParticipant(ctx, roomID, userID)
	switch {
	case err == nil:
		if existing.IsBanned {
			return models.NewPermissionDeniedError("banned from this room")
		}
		if existing.LeftAt != nil {
			if updErr := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{
				"left_at":   nil,
				"joined_at": time.Now(),
			}); updErr != nil {
				return models.NewInternalError(updErr)
			}
			middleware.Logger.Info("participant rejoined room",
				slog.Uint64("room_id", uint64(roomID)), slog.Uint64("user_id", uint64(userID)))
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		p := &models.Participant{
			ChatRoomID: roomID,
			UserID:     userID,
			Role:       models.RoleMember,
			JoinedAt:   time.Now(),
		}
		if createErr := s.roomRepo.AddParticipant(ctx, p); createErr != nil {
			return models.NewInternalError(createErr)
		}
		return nil
	default:
		return models.NewInternalError(err)
	}
}

// Rejoin reactivates a previously-left membership. Unlike AddParticipant it
// never creates a new entry: a user without one, or banned, is refused with
// PermissionDenied.
func (s *MembershipService) Rejoin(ctx context.Context, userID, roomID uint) error {
	existing, err := s.roomRepo.GetParticipant(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewPermissionDeniedError("not a participant of this room")
		}
		return models.NewInternalError(err)
	}
	if existing.IsBanned {
		return models.NewPermissionDeniedError("banned from this room")
	}
	if existing.LeftAt != nil {
		if updErr := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{
			"left_at":   nil,
			"joined_at": time.Now(),
		}); updErr != nil {
			return models.NewInternalError(updErr)
		}
		middleware.Logger.Info("participant rejoined room",
			slog.Uint64("room_id", uint64(roomID)), slog.Uint64("user_id", uint64(userID)))
	}
	return nil
}

// RemoveParticipant sets LeftAt without deleting the row; the entry is
// retained for reactivation and moderation context.
func (s *MembershipService) RemoveParticipant(ctx context.Context, userID, roomID uint) error {
	now := time.Now()
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{"left_at": now})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Ban marks the participant banned. An already-connected session is not
// evicted here; the gateway enforces the ban on the next send attempt.
func (s *MembershipService) Ban(ctx context.Context, userID, roomID uint, reason string) error {
	now := time.Now()
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{
		"is_banned":  true,
		"ban_reason": reason,
		"banned_at":  now,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Unban clears the ban flags. A no-op for a participant who is not banned.
func (s *MembershipService) Unban(ctx context.Context, userID, roomID uint) error {
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{
		"is_banned":  false,
		"ban_reason": "",
		"banned_at":  nil,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Mute silences the participant until now + duration. A zero duration mutes
// indefinitely.
func (s *MembershipService) Mute(ctx context.Context, userID, roomID uint, duration time.Duration) error {
	fields := map[string]interface{}{"is_muted": true}
	if duration > 0 {
		until := time.Now().Add(duration)
		fields["muted_until"] = until
	} else {
		fields["muted_until"] = nil
	}
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// Unmute clears the mute flags.
func (s *MembershipService) Unmute(ctx context.Context, userID, roomID uint) error {
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{
		"is_muted":    false,
		"muted_until": nil,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// UpdateLastRead stamps the participant's read cursor.
func (s *MembershipService) UpdateLastRead(ctx context.Context, userID, roomID uint) error {
	now := time.Now()
	err := s.roomRepo.UpdateParticipant(ctx, roomID, userID, map[string]interface{}{"last_read_at": now})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewNotFoundError("participant", userID)
		}
		return models.NewInternalError(err)
	}
	return nil
}

// CanModerate reports whether the user holds a moderator or owner role in
// the room.
func (s *MembershipService) CanModerate(ctx context.Context, userID, roomID uint) (bool, error) {
	p, err := s.roomRepo.GetParticipant(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, models.NewInternalError(err)
	}
	return p.Active() && p.IsModerator(), nil
}
