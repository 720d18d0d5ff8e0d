package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"voxchat/internal/chat"
	"voxchat/internal/ipc"
	"voxchat/internal/web"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	url := cli.StringP("url", "u", "", "Websocket of a voxchat web UI (ws://host:port/ws), used instead of the socket")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: voxchat-ctl [flags] <%s> [arg...]\n", strings.Join([]string{
			chat.CmdRecord, chat.CmdSend, chat.CmdClear, chat.CmdSpeechModel, chat.CmdLanguageModel, chat.CmdResize,
		}, "|"))
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() == 0 {
		cli.Usage()
		os.Exit(2)
	}

	cmd := cli.Arg(0)
	arg := strings.Join(cli.Args()[1:], " ")

	if *url != "" {
		if err := viaWeb(*url, chat.Command{Cmd: cmd, Arg: arg}); err != nil {
			fmt.Println("voxchat web UI unreachable:", err)
			os.Exit(1)
		}
		return
	}

	if err := ipc.SendCommand(*socket, ipc.ControlMessage{Cmd: cmd, Arg: arg}); err != nil {
		fmt.Println("voxchat not running:", err)
		os.Exit(1)
	}
}

// viaWeb sends cmd and waits for the first snapshot after it, so the
// reported error (if any) belongs to this command.
func viaWeb(url string, cmd chat.Command) error {
	c, err := web.Dial(url, 10*time.Second)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.Next(); err != nil {
		return err
	}
	if err := c.Send(cmd); err != nil {
		return err
	}

	snap, err := c.Next()
	if err != nil {
		return err
	}
	if snap.Error != "" {
		return fmt.Errorf("%s", snap.Error)
	}
	return nil
}
