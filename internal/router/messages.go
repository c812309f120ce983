package router

import (
	"errors"

	"github.com/illarion/lockbot/internal/device"
	"github.com/illarion/lockbot/internal/files"
	"github.com/illarion/lockbot/internal/security"
	"github.com/illarion/lockbot/internal/session"
	"github.com/illarion/lockbot/internal/vault"
)

const (
	msgUnauthorized    = "⛔ Unauthorized."
	msgUnknown         = "❓ Command not recognized. Send /help for the list."
	msgInactive        = "💤 The bot is inactive. Send /toggle to switch it on."
	msgInternal        = "❌ Something went wrong. Details are in the log."
	msgCancelled       = "✖️ Cancelled."
	msgNothingToCancel = "Nothing to cancel."
	msgSessionExpired  = "⌛ The pending %s command timed out."
	msgTooManyAttempts = "🚫 Too many unlock attempts. Try again later."

	msgLocking   = "🔒 Locking %s ..."
	msgLocked    = "🔒 Locked: %s"
	msgUnlocking = "🔓 Unlocking %s ..."
	msgUnlocked  = "🔓 Restored: %s"

	msgRemoveAborted = "Removal aborted."
	msgRemoved       = "🗑 Removed %s"
	msgCopying       = "📄 Copying %s ..."
	msgCopied        = "📄 Copied %s to %s"

	msgNoLocked = "No locked files."
	msgNoLogs   = "No activity recorded yet."
)

var prompts = map[session.Step]string{
	session.StepAwaitPath:        "📁 Send the path.",
	session.StepAwaitPassword:    "🔑 Send the password. The message will be deleted.",
	session.StepAwaitDestination: "📂 Send the destination path.",
	session.StepAwaitConfirm:     "⚠️ This cannot be undone. Reply yes to confirm.",
}

var flowPrompts = map[session.Flow]map[session.Step]string{
	session.FlowLock:   {session.StepAwaitPath: "🔒 Send the path of the file or folder to lock."},
	session.FlowUnlock: {session.StepAwaitPath: "🔓 Send the path of the .locked file."},
	session.FlowRemove: {session.StepAwaitPath: "🗑 Send the path to remove."},
	session.FlowCopy:   {session.StepAwaitPath: "📄 Send the path to copy."},
}

func prompt(flow session.Flow, step session.Step) string {
	if p, ok := flowPrompts[flow][step]; ok {
		return p
	}
	return prompts[step]
}

func promptButtons(step session.Step) [][]Button {
	if step == session.StepAwaitConfirm {
		return [][]Button{{{Label: "✅ Yes", ID: "yes"}, {Label: "✖️ No", ID: "no"}}}
	}
	return [][]Button{{{Label: "✖️ Cancel", ID: "cancel"}}}
}

var mainMenu = [][]Button{
	{{Label: "🔒 Lock", ID: "lock"}, {Label: "🔓 Unlock", ID: "unlock"}, {Label: "📋 Locked", ID: "locked"}},
	{{Label: "🗑 Remove", ID: "rm"}, {Label: "📄 Copy", ID: "cp"}},
	{{Label: "🔋 Battery", ID: "battery"}, {Label: "📶 WiFi", ID: "wifi"}, {Label: "📳 Vibrate", ID: "vibrate"}},
	{{Label: "🔦 Torch on", ID: "torch_on"}, {Label: "🔦 Torch off", ID: "torch_off"}},
	{{Label: "ℹ️ Status", ID: "status"}, {Label: "📜 Logs", ID: "logs"}, {Label: "⏯ Toggle", ID: "toggle"}},
}

// userMessage converts an error into the single line shown in chat.
// Internal detail such as wrapped OS errors stays in the log.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, vault.ErrWrongPassword):
		return "❌ Wrong password."
	case errors.Is(err, vault.ErrPathNotFound), errors.Is(err, files.ErrNotFound):
		return "❌ Path not found."
	case errors.Is(err, vault.ErrEntryNotFound):
		return "❌ Nothing is locked at that path."
	case errors.Is(err, vault.ErrAlreadyLocked):
		return "❌ Already locked."
	case errors.Is(err, vault.ErrDestinationExists), errors.Is(err, files.ErrExists):
		return "❌ Destination already exists. Move it away first."
	case errors.Is(err, vault.ErrCorruptArtifact):
		return "❌ The locked file is damaged or was not made by this bot."
	case errors.Is(err, vault.ErrArchive):
		return "❌ Could not archive or extract the folder."
	case errors.Is(err, vault.ErrTimeout), errors.Is(err, device.ErrTimeout):
		return "⏱ Timed out. Nothing was changed."
	case errors.Is(err, vault.ErrUnsupportedType):
		return "❌ Only regular files and folders can be locked."
	case errors.Is(err, vault.ErrInvalidPath), errors.Is(err, files.ErrInvalidPath), errors.Is(err, security.ErrOutsideRoots):
		return "❌ That path is not allowed."
	case errors.Is(err, files.ErrVaultArtifact):
		return "❌ Locked files can only be handled with /unlock."
	case errors.Is(err, vault.ErrPasswordRequired):
		return "❌ A password is required."
	case errors.Is(err, device.ErrUnavailable):
		return "❌ Not available on this device. Install termux-api."
	case errors.Is(err, device.ErrFailed):
		return "❌ The device command failed."
	case errors.Is(err, session.ErrSessionConflict):
		return "⚠️ Another command is in progress. Send /cancel first."
	case errors.Is(err, session.ErrNoActiveSession):
		return "Nothing in progress."
	default:
		return msgInternal
	}
}

// outcome is the short audit form of an error
func outcome(err error) string {
	for _, known := range []error{
		vault.ErrWrongPassword, vault.ErrPathNotFound, vault.ErrEntryNotFound,
		vault.ErrAlreadyLocked, vault.ErrDestinationExists, vault.ErrCorruptArtifact,
		vault.ErrArchive, vault.ErrTimeout, vault.ErrInvalidPath, vault.ErrIO,
		files.ErrNotFound, files.ErrExists, files.ErrVaultArtifact, files.ErrInvalidPath,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "failed"
}
