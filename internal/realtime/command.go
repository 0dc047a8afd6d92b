package realtime

// CommandKind names a client request.
type CommandKind string

const (
	CommandJoinRoom       CommandKind = "join_room"
	CommandLeaveRoom      CommandKind = "leave_room"
	CommandSendMessage    CommandKind = "send_message"
	CommandAddReaction    CommandKind = "add_reaction"
	CommandRemoveReaction CommandKind = "remove_reaction"
	CommandTypingStart    CommandKind = "typing_start"
	CommandTypingStop     CommandKind = "typing_stop"
)

// Command is a decoded client request. Message is set for send_message and
// Reaction for the reaction kinds.
type Command struct {
	Kind     CommandKind
	Room     RoomID
	Message  *Message
	Reaction *Reaction
}

// Constructors for each command kind.
func JoinRoom(room RoomID) Command  { return Command{Kind: CommandJoinRoom, Room: room} }
func LeaveRoom(room RoomID) Command { return Command{Kind: CommandLeaveRoom, Room: room} }

func SendMessage(msg Message) Command {
	return Command{Kind: CommandSendMessage, Room: msg.Room, Message: &msg}
}

func AddReaction(reaction Reaction) Command {
	return Command{Kind: CommandAddReaction, Room: reaction.Room, Reaction: &reaction}
}

func RemoveReaction(reaction Reaction) Command {
	return Command{Kind: CommandRemoveReaction, Room: reaction.Room, Reaction: &reaction}
}

func TypingStart(room RoomID) Command { return Command{Kind: CommandTypingStart, Room: room} }
func TypingStop(room RoomID) Command  { return Command{Kind: CommandTypingStop, Room: room} }
