package chat

import (
	"context"
	"fmt"
	"strconv"
)

const (
	CmdRecord        = "record"
	CmdSend          = "send"
	CmdClear         = "clear"
	CmdSpeechModel   = "stt-model"
	CmdLanguageModel = "llm-model"
	CmdResize        = "resize"
)

// Command is a named UI event coming from outside the terminal front-end
// (control socket, browser).
type Command struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Handle routes cmd to the matching controller method.
func (c *Controller) Handle(ctx context.Context, cmd Command) error {
	switch cmd.Cmd {
	case CmdRecord:
		c.ToggleRecording(ctx)
	case CmdSend:
		c.SendText(ctx, cmd.Arg)
	case CmdClear:
		c.Clear()
	case CmdSpeechModel:
		return c.SelectSpeechModel(cmd.Arg)
	case CmdLanguageModel:
		c.SelectLanguageModel(cmd.Arg)
	case CmdResize:
		w, err := strconv.Atoi(cmd.Arg)
		if err != nil || w < 0 {
			return fmt.Errorf("invalid width %q", cmd.Arg)
		}
		c.Resize(w)
	default:
		return fmt.Errorf("unknown command %q", cmd.Cmd)
	}

	return nil
}
