// Package msglog keeps an in-memory log of chat messages: their edit history, whether they were deleted, and which attachments went missing. It applies gateway-style
// events (message create, update, delete) and renders each recorded edit against the content that replaced it using tokendiff.
//
// Whether a message is logged at all is decided by Rules: bots, the local user, listed users, channels (or their parent category), and guilds can be ignored, and edit and
// delete logging can be switched off separately. Ephemeral messages are never logged.
package msglog
