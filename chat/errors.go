package chat

import "errors"

// Validation errors reported to the immediate caller. None of these are
// fatal, the command layer translates them into user-visible feedback.
var (
	ErrChannelNotFound           = errors.New("channel not found")
	ErrChatterNotFound           = errors.New("chatter not found")
	ErrAlreadyActiveMember       = errors.New("already an active member of the channel")
	ErrAccessDenied              = errors.New("access denied")
	ErrPasswordRequired          = errors.New("channel requires a password for entrance")
	ErrInviteOnly                = errors.New("channel is by invite only")
	ErrCannotLeaveActiveChannel  = errors.New("cannot leave the active channel")
	ErrCannotActOnDefaultChannel = errors.New("cannot act on the default channel")
	ErrPermissionDenied          = errors.New("permission denied")
	ErrNoLastSender              = errors.New("no private message to reply to")
)
