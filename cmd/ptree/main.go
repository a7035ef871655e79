// ptree is the interactive control client for a running leader: it
// frames RPCs over the leader's socket and prints the replies.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/docopt/docopt-go"
	"github.com/ergochat/readline"

	"github.com/drpcorg/ptree/rpc"
)

const usage = `ptree control client.

Usage:
  ptree [--socket=<path>] [--schema=<name>]
  ptree -h | --help

Options:
  --socket=<path>  Leader control socket [default: /dev/shm/ptree/config-leader-socket].
  --schema=<name>  Schema name sent with every mutation.
  -h --help        Show this screen.`

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("describe"),
	readline.PcItem("get"),
	readline.PcItem("set"),
	readline.PcItem("add"),
	readline.PcItem("remove"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

type client struct {
	socket string
	schema string
}

// call opens a fresh connection per RPC: the leader serves one request
// per connection and closes it after the reply.
func (c *client) call(method string, args rpc.Args) (*rpc.Reply, error) {
	conn, err := net.Dial("unix", c.socket)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	payload, err := json.Marshal(rpc.Request{Method: method, Args: args})
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintf(conn, "%d\n%s", len(payload), payload); err != nil {
		return nil, err
	}

	rd := bufio.NewReader(conn)
	line, err := rd.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("connection closed by leader")
		}
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSuffix(line, "\n"))
	if err != nil {
		return nil, fmt.Errorf("bad reply frame: %w", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(rd, body); err != nil {
		return nil, err
	}
	var reply rpc.Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *client) run(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := fields[0]
	switch cmd {
	case "help":
		fmt.Println("describe | get <path> | set <path> <config> | add <path> <config> | remove <path>")
		return nil
	case "describe":
		reply, err := c.call("describe", rpc.Args{})
		return show(reply, err)
	case "get":
		if len(fields) < 2 {
			return errors.New("get <path>")
		}
		reply, err := c.call("get-config", rpc.Args{Schema: c.schema, Path: fields[1]})
		return show(reply, err)
	case "set", "add":
		if len(fields) < 3 {
			return fmt.Errorf("%s <path> <config>", cmd)
		}
		config := strings.Join(fields[2:], " ")
		reply, err := c.call(cmd+"-config", rpc.Args{Schema: c.schema, Path: fields[1], Config: config})
		return show(reply, err)
	case "remove":
		if len(fields) < 2 {
			return errors.New("remove <path>")
		}
		reply, err := c.call("remove-config", rpc.Args{Schema: c.schema, Path: fields[1]})
		return show(reply, err)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func show(reply *rpc.Reply, err error) error {
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	var res map[string]any
	if err := json.Unmarshal(reply.Result, &res); err != nil {
		return err
	}
	if len(res) == 0 {
		fmt.Println("ok")
		return nil
	}
	for k, v := range res {
		fmt.Printf("%s:\n%v\n", k, v)
	}
	return nil
}

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], "")
	if err != nil {
		panic(err)
	}
	c := &client{}
	c.socket, _ = opts.String("--socket")
	c.schema, _ = opts.String("--schema")

	if c.schema == "" {
		if reply, err := c.call("describe", rpc.Args{}); err == nil && reply.Error == "" {
			var desc rpc.DescribeResult
			if json.Unmarshal(reply.Result, &desc) == nil {
				c.schema = desc.NativeSchema
			}
		}
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".ptree_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(line)
		if line == "exit" || line == "quit" {
			return
		}
		if err := c.run(line); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err.Error())
		}
	}
}
