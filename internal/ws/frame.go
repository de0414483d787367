package ws

// Frame is the wire shape of every gateway message, inbound and outbound.
type Frame struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Content any    `json:"content"`
}

// FrameTypeNotify is the only outbound frame type.
const FrameTypeNotify = "notify"

// Gateway control actions.
const (
	ActionWelcome             = "welcome"
	ActionConnectionCheck     = "connection_check"
	ActionMultipleConnections = "multiple_connections"
	ActionRoomJoin            = "rooms.join"
	ActionRoomLeave           = "rooms.leave"
)

// Notify builds an outbound frame.
func Notify(action string, content any) Frame {
	return Frame{Type: FrameTypeNotify, Action: action, Content: content}
}

// Group name builders. Connections are grouped by permission, queue and
// room.
func PermissionGroup(id string) string { return "permission_" + id }
func QueueGroup(id string) string      { return "queue_" + id }
func RoomGroup(id string) string       { return "room_" + id }
