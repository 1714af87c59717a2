package models

import (
	"strconv"
	"strings"
	"time"
)

// CommandType enumerates supported worker command categories.
type CommandType string

const (
	CommandStock     CommandType = "stock"
	CommandMortality CommandType = "mortality"
	CommandSale      CommandType = "sale"
	CommandStatus    CommandType = "status"
	CommandHelp      CommandType = "help"
	CommandUnknown   CommandType = "unknown"
)

// Command represents a parsed worker instruction extracted from WhatsApp text.
type Command struct {
	Type CommandType
	Raw  string
	// MessageID is the id of the message that carried the command, when known.
	MessageID string
	// SentAt dates the recorded event; zero means "now".
	SentAt time.Time
	Key    LedgerKey
	Args   []string
}

// ParseCommand derives a Command instance from free-form text messages.
// Commands address a ledger as "<farm> <category>" right after the verb. When
// the next token is a number the ledger is omitted and Key stays empty.
// The farm id keeps its case so it names the same ledger as the HTTP API.
func ParseCommand(message string) Command {
	cmd := Command{Type: CommandUnknown, Raw: message}

	tokens := strings.Fields(message)
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	switch head {
	case string(CommandStock):
		cmd.Type = CommandStock
	case string(CommandMortality), "death":
		cmd.Type = CommandMortality
	case string(CommandSale), "sales":
		cmd.Type = CommandSale
	case string(CommandStatus):
		cmd.Type = CommandStatus
	case string(CommandHelp):
		cmd.Type = CommandHelp
		return cmd
	default:
		return cmd
	}

	rest := tokens[1:]
	if len(rest) >= 2 && !isNumber(rest[0]) {
		cmd.Key = LedgerKey{FarmID: rest[0], Category: Category(strings.ToLower(rest[1]))}
		rest = rest[2:]
	}
	for _, arg := range rest {
		cmd.Args = append(cmd.Args, strings.ToLower(arg))
	}
	return cmd
}

func isNumber(token string) bool {
	_, err := strconv.ParseFloat(token, 64)
	return err == nil
}
