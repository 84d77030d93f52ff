package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

const fakeEngineEnv = "CHESSBOT_FAKE_ENGINE"

// fakeEngine returns a Config that runs this test binary as a UCI engine.
// Modes: ok, hang, hang-first, garbage, exit, exit-then-mute, mute, slow, none.
func fakeEngine(t *testing.T, mode string, env ...string) Config {
	t.Helper()
	return Config{
		Path:             os.Args[0],
		Args:             []string{"-test.run=^TestHelperEngine$"},
		Env:              append([]string{fakeEngineEnv + "=" + mode}, env...),
		HandshakeTimeout: 3 * time.Second,
		Grace:            300 * time.Millisecond,
	}
}

// TestHelperEngine is not a real test, it is the fake engine process
func TestHelperEngine(t *testing.T) {
	mode := os.Getenv(fakeEngineEnv)
	if mode == "" {
		return
	}
	runFakeEngine(mode, os.Stdin, os.Stdout)
	os.Exit(0)
}

func runFakeEngine(mode string, in io.Reader, out io.Writer) {
	w := bufio.NewWriter(out)
	say := func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
		w.Flush()
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	best := os.Getenv("FAKE_BESTMOVE")
	if best == "" {
		best = "e2e4"
	}
	delay, _ := strconv.Atoi(os.Getenv("FAKE_DELAY_MS"))

	reply := func() {
		say("info depth 12 seldepth 14 score cp 35 nodes 1000 pv %s e7e5", best)
		say("bestmove %s ponder e7e5", best)
	}

	for line := range lines {
		switch {
		case line == "uci":
			if mode == "mute" || (mode == "exit-then-mute" && tokenClaimed()) {
				continue
			}
			say("id name FakeFish")
			say("option name Skill Level type spin default 20 min 0 max 20")
			say("uciok")
		case line == "isready":
			say("readyok")
		case line == "quit":
			return
		case strings.HasPrefix(line, "go"):
			logGo()
			current := mode
			if mode == "hang-first" || mode == "exit-then-mute" {
				first := "hang"
				if mode == "exit-then-mute" {
					first = "exit"
				}
				current = "ok"
				if claimToken() {
					current = first
				}
			}
			switch current {
			case "hang":
			case "exit":
				os.Exit(3)
			case "garbage":
				say("bestmove zz99")
			case "none":
				say("info depth 0 score mate 0")
				say("bestmove (none)")
			case "slow":
				select {
				case <-time.After(time.Duration(delay) * time.Millisecond):
				case l, ok := <-lines:
					if !ok || l == "quit" {
						return
					}
				}
				reply()
			default:
				reply()
			}
		}
	}
}

// claimToken succeeds for exactly one process sharing FAKE_TOKEN
func claimToken() bool {
	path := os.Getenv("FAKE_TOKEN")
	if path == "" {
		return false
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func tokenClaimed() bool {
	path := os.Getenv("FAKE_TOKEN")
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// logGo appends one line per search to FAKE_GO_LOG
func logGo() {
	path := os.Getenv("FAKE_GO_LOG")
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	fmt.Fprintln(f, os.Getpid())
	f.Close()
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("ReadFile() error = %v", err)
	}
	return strings.Count(string(data), "\n")
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
