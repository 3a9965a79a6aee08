package audit

import (
	"context"

	"github.com/richharvestCC/ScoreBoard-sub001/pkg/log"
)

// Audit actions for the live-match hub.
const (
	ActionConnect      = "live.connect"
	ActionAuthFailed   = "live.auth_failed"
	ActionJoin         = "live.join"
	ActionLeave        = "live.leave"
	ActionUpdateScore  = "live.update_score"
	ActionAddEvent     = "live.add_event"
	ActionChangeStatus = "live.change_status"
	ActionDisconnect   = "live.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithMatch emits an audit log scoped to one match.
func LogWithMatch(ctx context.Context, action string, userID string, matchID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldMatchID, matchID).
		Msg(msg)
}
