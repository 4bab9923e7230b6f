package server

import (
	"time"

	"podium/internal/models"
	"podium/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// GetMyRooms handles GET /api/rooms.
// Returns the chat rooms where the caller is an active participant, most
// recently active first.
func (s *Server) GetMyRooms(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)

	rooms, err := s.membership.GetRoomsForUser(ctx, userID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(rooms)
}

// GetRoom handles GET /api/rooms/:id.
func (s *Server) GetRoom(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	room, err := s.membership.GetRoom(ctx, roomID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	if p := room.FindParticipant(userID); p == nil || !p.Active() {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewPermissionDeniedError("not a participant of this room"))
	}

	return c.JSON(room)
}

// GetRoomMessages handles GET /api/rooms/:id/messages.
// Supports `limit`, and RFC3339 `before`/`after` window parameters. Messages
// are returned newest first; soft-deleted messages are included with their
// content intact for the audit trail.
func (s *Server) GetRoomMessages(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	room, err := s.membership.GetRoom(ctx, roomID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}
	if p := room.FindParticipant(userID); p == nil || !p.Active() {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewPermissionDeniedError("not a participant of this room"))
	}

	q := repository.MessageQuery{Limit: parsePagination(c, 50).Limit}
	if before := c.Query("before"); before != "" {
		t, perr := time.Parse(time.RFC3339, before)
		if perr != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("before must be an RFC3339 timestamp"))
		}
		q.Before = t
	}
	if after := c.Query("after"); after != "" {
		t, perr := time.Parse(time.RFC3339, after)
		if perr != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("after must be an RFC3339 timestamp"))
		}
		q.After = t
	}

	messages, err := s.messages.List(ctx, roomID, q)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(messages)
}

// JoinRoom handles POST /api/rooms/:id/join.
// Rejoining after a leave reactivates the original membership row.
func (s *Server) JoinRoom(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.membership.AddParticipant(ctx, userID, roomID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Joined room"})
}

// LeaveRoom handles DELETE /api/rooms/:id/leave.
func (s *Server) LeaveRoom(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.membership.RemoveParticipant(ctx, userID, roomID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Left room"})
}

// MarkRoomRead handles POST /api/rooms/:id/read.
func (s *Server) MarkRoomRead(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.membership.UpdateLastRead(ctx, userID, roomID); err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(fiber.Map{"message": "Marked as read"})
}
