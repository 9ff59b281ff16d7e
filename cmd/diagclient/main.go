package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danmuck/diagipc/internal/diag"
	"github.com/danmuck/diagipc/internal/ipc"
	"github.com/danmuck/diagipc/internal/transport"
)

func main() {
	endpoint := flag.String("endpoint", "", "endpoint name or socket path of the target runtime")
	pid := flag.Int("pid", 0, "target pid; locates its endpoint when -endpoint is unset")
	commandSet := flag.Uint("command-set", uint(diag.CommandSetProcess), "command set id")
	command := flag.Uint("command", uint(diag.ProcessCommandInfo), "command id")
	timeout := flag.Duration("timeout", 5*time.Second, "dial and reply timeout")
	flag.Parse()

	name := *endpoint
	if name == "" && *pid != 0 {
		found, err := transport.FindName(*pid)
		if err != nil {
			fmt.Fprintf(os.Stderr, "diagclient: %v\n", err)
			os.Exit(1)
		}
		name = found
	}
	if name == "" {
		fmt.Fprintln(os.Stderr, "diagclient: -endpoint or -pid is required")
		os.Exit(2)
	}
	if *commandSet > 0xFF || *command > 0xFF {
		fmt.Fprintln(os.Stderr, "diagclient: command set and command must fit in one byte")
		os.Exit(2)
	}

	if err := run(name, uint8(*commandSet), uint8(*command), *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "diagclient: %v\n", err)
		os.Exit(1)
	}
}

func run(name string, set, cmd uint8, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := transport.Dial(ctx, name)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	req, err := ipc.Encode(ipc.NewHeader(set, cmd), ipc.Empty{}, ipc.Custom[ipc.Empty]())
	if err != nil {
		return err
	}
	if err := ipc.WriteMessage(conn, req); err != nil {
		return err
	}

	reply, err := ipc.ReadMessage(conn)
	if err != nil {
		return err
	}
	if !diag.IsOK(reply) {
		code, err := diag.ParseError(reply)
		if err != nil {
			return err
		}
		return fmt.Errorf("runtime replied with error 0x%08X", code)
	}

	if diag.CommandSet(set) == diag.CommandSetProcess && cmd == diag.ProcessCommandInfo {
		info, err := ipc.ExtractPayload(reply, diag.ProcessInfoCodec)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Printf("%s ok, %d payload bytes\n", reply.Header(), len(reply.Payload()))
	return nil
}
