package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"podium/internal/models"
	"podium/internal/moderation"
	"podium/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// moderationRequest is the shared body shape for participant-targeted
// moderation actions.
type moderationRequest struct {
	TargetUserID    uint   `json:"target_user_id"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
}

// enqueueAction submits a moderation action to the pipeline and writes the
// accepted/overloaded response. Actions are asynchronous: the effect is
// applied by a worker and announced on the room's moderation channel.
func (s *Server) enqueueAction(c *fiber.Ctx, job moderation.ActionJob) error {
	if err := s.pipeline.EnqueueAction(job); err != nil {
		if errors.Is(err, moderation.ErrQueueFull) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewInternalError(err))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "queued",
		"action": job.Action,
	})
}

// parseModerationRequest parses and validates the action body. On failure it
// writes the 400 response and returns errResponseWritten.
func (s *Server) parseModerationRequest(c *fiber.Ctx) (*moderationRequest, error) {
	var req moderationRequest
	if err := c.BodyParser(&req); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return nil, errResponseWritten
	}
	if req.TargetUserID == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("target_user_id is required"))
		return nil, errResponseWritten
	}
	req.Reason = strings.TrimSpace(req.Reason)
	return &req, nil
}

// BanParticipant handles POST /api/rooms/:id/moderation/ban.
func (s *Server) BanParticipant(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.parseModerationRequest(c)
	if err != nil {
		return nil
	}
	if req.TargetUserID == adminID {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("cannot ban yourself"))
	}

	return s.enqueueAction(c, moderation.ActionJob{
		Action:       models.ActionBan,
		RoomID:       roomID,
		TargetUserID: req.TargetUserID,
		ModeratorID:  fmt.Sprintf("%d", adminID),
		Reason:       req.Reason,
	})
}

// UnbanParticipant handles POST /api/rooms/:id/moderation/unban.
func (s *Server) UnbanParticipant(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.parseModerationRequest(c)
	if err != nil {
		return nil
	}

	return s.enqueueAction(c, moderation.ActionJob{
		Action:       models.ActionUnban,
		RoomID:       roomID,
		TargetUserID: req.TargetUserID,
		ModeratorID:  fmt.Sprintf("%d", adminID),
		Reason:       req.Reason,
	})
}

// MuteParticipant handles POST /api/rooms/:id/moderation/mute.
// A zero duration_minutes mutes indefinitely.
func (s *Server) MuteParticipant(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.parseModerationRequest(c)
	if err != nil {
		return nil
	}
	if req.DurationMinutes < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("duration_minutes must not be negative"))
	}

	return s.enqueueAction(c, moderation.ActionJob{
		Action:       models.ActionMute,
		RoomID:       roomID,
		TargetUserID: req.TargetUserID,
		ModeratorID:  fmt.Sprintf("%d", adminID),
		Reason:       req.Reason,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
	})
}

// UnmuteParticipant handles POST /api/rooms/:id/moderation/unmute.
func (s *Server) UnmuteParticipant(c *fiber.Ctx) error {
	adminID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	req, err := s.parseModerationRequest(c)
	if err != nil {
		return nil
	}

	return s.enqueueAction(c, moderation.ActionJob{
		Action:       models.ActionUnmute,
		RoomID:       roomID,
		TargetUserID: req.TargetUserID,
		ModeratorID:  fmt.Sprintf("%d", adminID),
		Reason:       req.Reason,
	})
}

// DeleteRoomMessage handles POST /api/rooms/:id/moderation/delete-message.
func (s *Server) DeleteRoomMessage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	adminID := c.Locals("userID").(uint)
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		MessageID string `json:"message_id"`
		Reason    string `json:"reason"`
	}
	if err := c.BodyParser(&req); err != nil || req.MessageID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("message_id is required"))
	}

	msg, err := s.msgRepo.Get(ctx, req.MessageID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Message", req.MessageID))
	}
	if msg.ChatRoomID != roomID {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Message", req.MessageID))
	}

	return s.enqueueAction(c, moderation.ActionJob{
		Action:       models.ActionDeleteMessage,
		RoomID:       roomID,
		TargetUserID: msg.UserID,
		ModeratorID:  fmt.Sprintf("%d", adminID),
		Reason:       strings.TrimSpace(req.Reason),
		MessageID:    &msg.ID,
	})
}

// FilterMessageContent handles POST /api/rooms/:id/moderation/filter-content.
// Re-screens an already-persisted message through the room's auto-moderation
// settings, e.g. after a user report.
func (s *Server) FilterMessageContent(c *fiber.Ctx) error {
	ctx := c.UserContext()
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		MessageID string `json:"message_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.MessageID == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("message_id is required"))
	}

	msg, err := s.msgRepo.Get(ctx, req.MessageID)
	if err != nil || msg.ChatRoomID != roomID {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Message", req.MessageID))
	}

	if err := s.pipeline.EnqueueContentFilter(moderation.ContentFilterJob{
		MessageID: msg.ID,
		RoomID:    roomID,
		UserID:    msg.UserID,
		Content:   msg.Content,
	}); err != nil {
		if errors.Is(err, moderation.ErrQueueFull) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewInternalError(err))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "queued"})
}

// GetModerationLogs handles GET /api/rooms/:id/moderation/logs.
// Supports `action`, `target_user_id` and `limit` query filters; entries are
// returned newest first.
func (s *Server) GetModerationLogs(c *fiber.Ctx) error {
	ctx := c.UserContext()
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	q := repository.LogQuery{
		Action:       models.ModerationAction(c.Query("action")),
		TargetUserID: uint(c.QueryInt("target_user_id", 0)),
		Limit:        parsePagination(c, 50).Limit,
	}

	entries, err := s.pipeline.ListLogs(ctx, roomID, q)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(entries)
}

// GetModerationStats handles GET /api/rooms/:id/moderation/stats.
func (s *Server) GetModerationStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	roomID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	stats, err := s.pipeline.GetRoomModerationStats(ctx, roomID)
	if err != nil {
		return models.RespondWithError(c, models.StatusForError(err), err)
	}

	return c.JSON(fiber.Map{
		"room_id": roomID,
		"actions": stats,
	})
}
