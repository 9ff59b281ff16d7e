package diag

import (
	"fmt"

	"github.com/danmuck/diagipc/internal/ipc"
)

// CommandSet is the coarse selector in the header.
type CommandSet uint8

const (
	CommandSetDump      CommandSet = 0x01
	CommandSetEventPipe CommandSet = 0x02
	CommandSetProfiler  CommandSet = 0x03
	CommandSetProcess   CommandSet = 0x04
	CommandSetServer    CommandSet = 0xFF
)

func (c CommandSet) String() string {
	switch c {
	case CommandSetDump:
		return "dump"
	case CommandSetEventPipe:
		return "eventpipe"
	case CommandSetProfiler:
		return "profiler"
	case CommandSetProcess:
		return "process"
	case CommandSetServer:
		return "server"
	default:
		return fmt.Sprintf("0x%02x", uint8(c))
	}
}

// Server command set replies.
const (
	ServerCommandOK    uint8 = 0x00
	ServerCommandError uint8 = 0xFF
)

// Process command set.
const (
	ProcessCommandInfo uint8 = 0x00
)

// Error reply codes.
const (
	CodeFail           uint32 = 0x80004005
	CodeBadEncoding    uint32 = 0x80131384
	CodeUnknownCommand uint32 = 0x80131385
	CodeUnknownMagic   uint32 = 0x80131386
)

// ErrorPayload is the body of a Server/Error reply.
type ErrorPayload struct {
	Code uint32
}

var errorCodec = ipc.Fixed[ErrorPayload]()

// ErrorReply builds a Server/Error message.
func ErrorReply(code uint32) (ipc.Message, error) {
	return ipc.Encode(ipc.NewHeader(uint8(CommandSetServer), ServerCommandError), ErrorPayload{Code: code}, errorCodec)
}

// OKReply builds a Server/OK message carrying v.
func OKReply[T any](v T, codec ipc.Codec[T]) (ipc.Message, error) {
	return ipc.Encode(ipc.NewHeader(uint8(CommandSetServer), ServerCommandOK), v, codec)
}

// ParseError extracts the code from a Server/Error reply.
func ParseError(msg ipc.Message) (uint32, error) {
	if CommandSet(msg.CommandSet()) != CommandSetServer || msg.Command() != ServerCommandError {
		return 0, fmt.Errorf("diag: not an error reply: %s", msg.Header())
	}
	p, err := ipc.ExtractPayload(msg, errorCodec)
	if err != nil {
		return 0, err
	}
	return p.Code, nil
}

func IsOK(msg ipc.Message) bool {
	return CommandSet(msg.CommandSet()) == CommandSetServer && msg.Command() == ServerCommandOK
}
