package ws

import (
	"context"
	"encoding/json"
	"errors"

	"petadopt/internal/model"
	"petadopt/internal/service"

	"go.uber.org/zap"
)

// commandArgs is the union of the arguments the adoption commands take.
type commandArgs struct {
	OrganizationID  string              `json:"organizationId"`
	RequestID       string              `json:"requestId"`
	Status          model.RequestStatus `json:"status"`
	ResponseMessage string              `json:"responseMessage"`
}

// CommandHandler runs adoption operations requested over a socket, on behalf
// of the socket's session.
type CommandHandler struct {
	adoptions *service.AdoptionService
	log       *zap.Logger
}

func NewCommandHandler(adoptionSvc *service.AdoptionService, log *zap.Logger) *CommandHandler {
	return &CommandHandler{
		adoptions: adoptionSvc,
		log:       log,
	}
}

func (h *CommandHandler) HandleCommand(ctx context.Context, conn *Conn, f clientFrame) {
	var args commandArgs
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &args); err != nil {
			conn.sendError(f.ID, "invalid_input", "malformed command data")
			return
		}
	}

	sess := conn.session
	// A command may target another organization the user belongs to.
	if args.OrganizationID != "" {
		sess.ActiveOrganizationID = args.OrganizationID
	}

	var (
		result interface{}
		err    error
	)
	switch f.Op {
	case "listMyRequests":
		result, err = h.adoptions.ListForAdopter(ctx, sess)
	case "listOrganizationRequests":
		result, err = h.adoptions.ListForOrganization(ctx, sess)
	case "getRequest":
		if args.RequestID == "" {
			conn.sendError(f.ID, "invalid_input", "requestId required")
			return
		}
		result, err = h.adoptions.Get(ctx, sess, args.RequestID)
	case "decideRequest":
		if args.RequestID == "" || args.Status == "" {
			conn.sendError(f.ID, "invalid_input", "requestId and status required")
			return
		}
		result, err = h.adoptions.UpdateStatus(ctx, sess, args.RequestID, args.Status, args.ResponseMessage)
	case "withdrawRequest":
		if args.RequestID == "" {
			conn.sendError(f.ID, "invalid_input", "requestId required")
			return
		}
		err = h.adoptions.Withdraw(ctx, sess, args.RequestID)
		result = map[string]model.RequestStatus{"status": model.RequestCancelled}
	default:
		conn.sendError(f.ID, "unknown_command", "Unknown command: "+f.Op)
		return
	}

	if err != nil {
		h.fail(conn, f.ID, err)
		return
	}
	conn.enqueue(responseFrame(f.ID, result))
}

func (h *CommandHandler) fail(conn *Conn, msgID string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	code := service.Code(err)
	message := err.Error()
	switch code {
	case service.CodeInternal:
		h.log.Error("WebSocket command failed", zap.String("user_id", conn.session.UserID), zap.Error(err))
		message = "internal error"
	case service.CodePersistence:
		h.log.Error("WebSocket command failed", zap.String("user_id", conn.session.UserID), zap.Error(err))
		message = "storage temporarily unavailable"
	}
	conn.sendError(msgID, code, message)
}
