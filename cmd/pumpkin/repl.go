package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/pumpkin/pkg/runtime"
)

const (
	historyFile = ".pumpkin_history"
	promptMain  = "pumpkin> "
	promptCont  = "...      "
)

// cmdRepl handles `pumpkin repl`. Each input is a JSON program document;
// globals persist from one input to the next.
func cmdRepl(args []string) int {
	var flags commonFlags
	fs := newFlagSet("repl", "[options]")
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	proj, err := loadProject(ctx, &flags)
	if err != nil {
		reportError(os.Stderr, err)
		return 1
	}

	fmt.Println("Pumpkin REPL (enter JSON programs, :help for commands)")

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	r := newRepl(os.Stdout, proj.runtimeOptions()...)
	for {
		input, ok := readDocument(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(input, "\n", " "))
		if r.handle(ctx, input) {
			return 0
		}
	}
}

// readDocument reads lines until they form a complete JSON value or a
// ':' command.
func readDocument(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() == 0 && strings.HasPrefix(strings.TrimSpace(line), ":") {
			return line, true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.TrimSpace(src) == "" || !incompleteJSON(src) {
			return src, true
		}
	}
}

// incompleteJSON reports whether src fails to parse only because it ends
// early.
func incompleteJSON(src string) bool {
	var v interface{}
	err := json.Unmarshal([]byte(src), &v)
	return err != nil && err.Error() == "unexpected end of JSON input"
}

// repl evaluates inputs against one session.
type repl struct {
	session *runtime.Session
	out     io.Writer
}

func newRepl(out io.Writer, opts ...runtime.Option) *repl {
	return &repl{session: runtime.NewSession(opts...), out: out}
}

// handle evaluates a program or runs a ':' command. It returns true when
// the user asked to quit.
func (r *repl) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, ":") {
		return r.command(ctx, input)
	}
	r.eval(ctx, []byte(input))
	return false
}

func (r *repl) eval(ctx context.Context, data []byte) {
	res := r.session.RunJSON(ctx, data)
	for _, line := range res.Output {
		fmt.Fprintln(r.out, line)
	}
	if !res.Success {
		fmt.Fprintln(r.out, res.Error.Pretty(""))
		return
	}
	if res.ReturnValue != nil && !res.ReturnValue.IsNull() {
		fmt.Fprintf(r.out, "=> %s\n", res.ReturnValue.Inspect())
	}
}

func (r *repl) command(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case ":help", ":h", ":?":
		fmt.Fprintln(r.out, "REPL Commands:")
		fmt.Fprintln(r.out, "  :help, :h, :?     Show this help")
		fmt.Fprintln(r.out, "  :globals          List global bindings")
		fmt.Fprintln(r.out, "  :load <file>      Run a program file in this session")
		fmt.Fprintln(r.out, "  :reset            Discard every global")
		fmt.Fprintln(r.out, "  :quit             Exit")
	case ":globals":
		globals := r.session.Globals()
		names := make([]string, 0, len(globals))
		for name := range globals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(r.out, "%s = %s\n", name, globals[name].Inspect())
		}
	case ":load":
		if len(fields) != 2 {
			fmt.Fprintln(r.out, "Usage: :load <file>")
			break
		}
		fn, err := loadFunction(fields[1])
		if err != nil {
			reportError(r.out, err)
			break
		}
		res := r.session.RunFunction(ctx, fn)
		for _, line := range res.Output {
			fmt.Fprintln(r.out, line)
		}
		if !res.Success {
			fmt.Fprintln(r.out, res.Error.Pretty(""))
		}
	case ":reset":
		r.session.Reset()
		fmt.Fprintln(r.out, "Session reset")
	case ":quit", ":q", ":exit":
		return true
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type :help for commands)\n", fields[0])
	}
	return false
}
