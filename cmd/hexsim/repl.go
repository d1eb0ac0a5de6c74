package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sibexico/HexSim/storage"
)

const replHelp = `commands:
  read <page>           read a page
  write <page> [text]   write text, zero padded, to a page
  flush                 write back every dirty page
  stats                 print counters
  quit                  flush and exit
`

func cmdRepl(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("repl", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cf := addConfigFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := cf.load()
	if err != nil {
		return err
	}
	s, err := openSession(cfg)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "hexsim> ",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("read"),
			readline.PcItem("write"),
			readline.PcItem("flush"),
			readline.PcItem("stats"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		Stdout:          stdout,
	})
	if err != nil {
		return errors.Join(err, s.Close())
	}
	defer rl.Close()

	fmt.Fprintf(stdout, "%s, %d pages of %d bytes. Type help for commands.\n",
		s.mgr.Description(), cfg.PageCount, s.mgr.PageSize())
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				break
			}
			continue
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Join(err, s.Close())
		}

		quit, err := s.exec(line, stdout)
		if err != nil {
			fmt.Fprintln(stdout, "error:", err)
		}
		if quit {
			break
		}
	}
	return s.Close()
}

// exec runs one REPL command line and reports whether the session should end.
func (s *session) exec(line string, out io.Writer) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "read", "write":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: %s <page>", cmd)
		}
		page, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return false, fmt.Errorf("bad page %q", fields[1])
		}
		before := s.mgr.Metrics().Snapshot()

		var data []byte
		if cmd == "read" {
			data, err = s.mgr.Read(uint32(page))
		} else {
			data = make([]byte, s.mgr.PageSize())
			copy(data, strings.Join(fields[2:], " "))
			err = s.mgr.Write(uint32(page), data)
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(out, "%s page %d: %s %q\n", cmd, page, outcome(before, s.mgr.Metrics().Snapshot()), preview(data))

	case "flush":
		if err := s.mgr.Flush(); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "flushed (%d so far)\n", s.mgr.FlushCount())

	case "stats":
		return false, s.report(out)

	case "help", "?":
		fmt.Fprint(out, replHelp)

	case "quit", "exit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return false, nil
}

func outcome(before, after storage.MetricsSnapshot) string {
	switch {
	case after.GhostHits > before.GhostHits:
		return "ghost hit"
	case after.CacheHits > before.CacheHits:
		return "hit"
	}
	return "miss"
}

// preview returns up to 32 leading bytes of a page without trailing zeros.
func preview(data []byte) []byte {
	return bytes.TrimRight(data[:min(len(data), 32)], "\x00")
}
