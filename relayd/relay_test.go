package relayd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
	gtpoll "gotest.tools/v3/poll"

	"github.com/circleci/nostrd/freeport"
	"github.com/circleci/nostrd/internal/syncbuffer"
	"github.com/circleci/nostrd/relayconf"
	"github.com/circleci/nostrd/testing/poll"
	"github.com/circleci/nostrd/testing/testcontext"
)

func fakeConfig(t *testing.T, args ...string) Config {
	return Config{
		Binary:  fakeRelay,
		Args:    args,
		TempDir: t.TempDir(),
	}
}

func start(ctx context.Context, t *testing.T, conf Config) *Relay {
	t.Helper()
	r, err := Start(ctx, conf)
	assert.Assert(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestStart(t *testing.T) {
	ctx := testcontext.Background()
	conf := fakeConfig(t)
	r := start(ctx, t, conf)

	t.Run("Endpoint matches the config the relay was given", func(t *testing.T) {
		n, err := relayconf.Read(r.ConfigFile())
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(n.Address, "127.0.0.1"))
		assert.Check(t, cmp.Equal(n.Port, r.Port()))
		assert.Check(t, cmp.Equal(r.URL(), "ws://127.0.0.1:"+strconv.Itoa(n.Port)))
	})

	t.Run("Relay is serving on the endpoint", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, r.URL(), nil)
		assert.Assert(t, err)
		defer conn.Close()
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		assert.Assert(t, conn.WriteMessage(websocket.TextMessage, []byte(`["REQ","sub",{}]`)))
		mt, msg, err := conn.ReadMessage()
		assert.Assert(t, err)
		assert.Check(t, cmp.Equal(mt, websocket.TextMessage))
		assert.Check(t, cmp.Equal(string(msg), `["REQ","sub",{}]`))
	})

	t.Run("Working directory holds the config", func(t *testing.T) {
		assert.Check(t, strings.HasPrefix(r.WorkDir(), conf.TempDir))
		_, err := os.Stat(r.ConfigFile())
		assert.Check(t, err)
		assert.Check(t, cmp.Equal(r.Binary(), fakeRelay))
	})

	t.Run("Transcript includes lines consumed while waiting", func(t *testing.T) {
		assert.Check(t, cmp.Contains(r.Transcript(), "control message listener started"))
		assert.Check(t, cmp.Contains(r.Transcript(), "rust_log=debug"))
	})
}

func TestStart_FixedPort(t *testing.T) {
	ctx := testcontext.Background()
	port, err := freeport.Get(ctx)
	assert.Assert(t, err)

	conf := fakeConfig(t)
	conf.Port = port
	r := start(ctx, t, conf)
	assert.Check(t, cmp.Equal(r.Port(), port))
}

func TestStart_Exhausted(t *testing.T) {
	ctx := testcontext.Background()
	records := fs.NewFile(t, "fakerelay-records")

	conf := fakeConfig(t, "--mode", "silent")
	conf.Attempts = 3
	conf.ReadyTimeout = 300 * time.Millisecond
	conf.Env = []string{"FAKERELAY_RECORD=" + records.Path()}

	begin := time.Now()
	r, err := Start(ctx, conf)
	elapsed := time.Since(begin)
	assert.Check(t, r == nil)
	assert.Check(t, cmp.ErrorIs(err, ErrSetupExhausted))

	t.Run("Took about attempts times the deadline", func(t *testing.T) {
		assert.Check(t, elapsed >= 900*time.Millisecond, elapsed)
		assert.Check(t, elapsed < 10*time.Second, elapsed)
	})

	t.Run("Every attempt timed out", func(t *testing.T) {
		var setupErr *SetupError
		assert.Assert(t, errors.As(err, &setupErr))
		assert.Assert(t, cmp.Len(setupErr.Attempts, 3))
		for i, a := range setupErr.Attempts {
			assert.Check(t, cmp.Equal(a.Attempt, i+1))
			assert.Check(t, cmp.Equal(a.Outcome, OutcomeTimedOut))
		}
		assert.Check(t, cmp.ErrorContains(err, fakeRelay))
	})

	t.Run("Each attempt had its own directory, all removed", func(t *testing.T) {
		b, rerr := os.ReadFile(records.Path())
		assert.Assert(t, rerr)
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		assert.Assert(t, cmp.Len(lines, 3))

		dirs := map[string]bool{}
		for _, l := range lines {
			dir, _, _ := strings.Cut(l, " ")
			dirs[dir] = true
			_, serr := os.Stat(dir)
			assert.Check(t, os.IsNotExist(serr), dir)
		}
		assert.Check(t, cmp.Len(dirs, 3))

		entries, rerr := os.ReadDir(conf.TempDir)
		assert.Assert(t, rerr)
		assert.Check(t, cmp.Len(entries, 0))
	})
}

func TestStart_ExitsImmediately(t *testing.T) {
	ctx := testcontext.Background()
	conf := fakeConfig(t, "--mode", "exit")
	conf.Attempts = 2
	conf.ReadyTimeout = 20 * time.Second

	begin := time.Now()
	_, err := Start(ctx, conf)
	assert.Check(t, cmp.ErrorIs(err, ErrSetupExhausted))
	assert.Check(t, time.Since(begin) < 10*time.Second, "did not fail fast")

	var setupErr *SetupError
	assert.Assert(t, errors.As(err, &setupErr))
	for _, a := range setupErr.Attempts {
		assert.Check(t, cmp.Equal(a.Outcome, OutcomeExited))
		assert.Check(t, cmp.Contains(strings.Join(a.Tail, "\n"), "refusing to start"))
	}
}

func TestStart_MarkerNeedsDebugLogging(t *testing.T) {
	ctx := testcontext.Background()
	conf := fakeConfig(t)
	conf.Attempts = 1
	conf.ReadyTimeout = 300 * time.Millisecond
	conf.LogLevel = "info"

	_, err := Start(ctx, conf)
	var setupErr *SetupError
	assert.Assert(t, errors.As(err, &setupErr))
	assert.Assert(t, cmp.Len(setupErr.Attempts, 1))
	a := setupErr.Attempts[0]
	assert.Check(t, cmp.Equal(a.Outcome, OutcomeTimedOut))
	assert.Check(t, cmp.Contains(strings.Join(a.Tail, "\n"), "rust_log=info"))
}

func TestStart_InvalidConfig(t *testing.T) {
	ctx := testcontext.Background()

	t.Run("Missing binary", func(t *testing.T) {
		conf := fakeConfig(t)
		conf.Binary = fakeRelay + "-missing"
		_, err := Start(ctx, conf)
		assert.Check(t, cmp.ErrorIs(err, ErrInvalidConfig))

		entries, rerr := os.ReadDir(conf.TempDir)
		assert.Assert(t, rerr)
		assert.Check(t, cmp.Len(entries, 0))
	})

	t.Run("Negative attempts", func(t *testing.T) {
		conf := fakeConfig(t)
		conf.Attempts = -1
		_, err := Start(ctx, conf)
		assert.Check(t, cmp.ErrorIs(err, ErrInvalidConfig))
	})
}

func TestStart_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(testcontext.Background(), 300*time.Millisecond)
	defer cancel()

	conf := fakeConfig(t, "--mode", "silent")
	conf.ReadyTimeout = 20 * time.Second

	begin := time.Now()
	_, err := Start(ctx, conf)
	assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
	assert.Check(t, !errors.Is(err, ErrSetupExhausted))
	assert.Check(t, time.Since(begin) < 10*time.Second)

	entries, rerr := os.ReadDir(conf.TempDir)
	assert.Assert(t, rerr)
	assert.Check(t, cmp.Len(entries, 0))
}

func TestStart_ArgsAndEcho(t *testing.T) {
	ctx := testcontext.Background()
	echo := &syncbuffer.SyncBuffer{}

	conf := fakeConfig(t, "--delay", "50ms")
	conf.Echo = echo
	r := start(ctx, t, conf)

	assert.Check(t, cmp.Contains(echo.String(), "control message listener started"))
	assert.Check(t, cmp.Contains(echo.String(), "db="+r.WorkDir()))
}

func TestRelay_DrainLogs(t *testing.T) {
	ctx := testcontext.Background()
	r := start(ctx, t, fakeConfig(t, "--chatty", "50"))

	drained := 0
	gtpoll.WaitOn(t, func(t gtpoll.LogT) gtpoll.Result {
		drained += r.DrainLogs()
		if drained == 50 {
			return gtpoll.Success()
		}
		return gtpoll.Continue("drained %d of 50", drained)
	}, gtpoll.WithTimeout(5*time.Second), gtpoll.WithDelay(10*time.Millisecond))

	t.Run("Nothing is pending after a drain", func(t *testing.T) {
		select {
		case l := <-r.Logs():
			t.Fatalf("unexpected line %q", l)
		case <-time.After(100 * time.Millisecond):
		}
		assert.Check(t, cmp.Equal(r.DrainLogs(), 0))
	})
}

func TestRelay_WaitForLog(t *testing.T) {
	ctx := testcontext.Background()
	r := start(ctx, t, fakeConfig(t, "--chatty", "5"))

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	l, err := r.WaitForLog(wctx, "chatter 3")
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(l.Stream, "stdout"))

	t.Run("Times out", func(t *testing.T) {
		wctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		_, err := r.WaitForLog(wctx, "never logged")
		assert.Check(t, cmp.ErrorIs(err, context.DeadlineExceeded))
	})
}

func TestRelay_Stop(t *testing.T) {
	ctx := testcontext.Background()
	r, err := Start(ctx, fakeConfig(t))
	assert.Assert(t, err)
	pid := r.PID()

	assert.Check(t, r.Stop())

	t.Run("Second stop also succeeds", func(t *testing.T) {
		assert.Check(t, r.Stop())
		r.Close()
	})

	t.Run("No live process", func(t *testing.T) {
		select {
		case <-r.Exited():
		default:
			t.Fatal("relay has not exited")
		}
		poll.AssertIt(ctx, t, 5*time.Second, func() (bool, error) {
			err := syscall.Kill(pid, 0)
			if errors.Is(err, syscall.ESRCH) {
				return true, nil
			}
			return false, fmt.Errorf("process %d still present: %v", pid, err)
		})
	})

	t.Run("Working directory removed", func(t *testing.T) {
		_, err := os.Stat(r.WorkDir())
		assert.Check(t, os.IsNotExist(err))
	})

	t.Run("Graceful shutdown was logged", func(t *testing.T) {
		assert.Check(t, cmp.Contains(r.Transcript(), "shutting down"))
	})

	t.Run("Log channel is closed without reading it", func(t *testing.T) {
		_, ok := <-r.Logs()
		assert.Check(t, !ok)
	})
}

func TestRelay_StopAfterExit(t *testing.T) {
	ctx := testcontext.Background()
	r, err := Start(ctx, fakeConfig(t))
	assert.Assert(t, err)

	assert.Assert(t, syscall.Kill(r.PID(), syscall.SIGKILL))
	select {
	case <-r.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not exit after SIGKILL")
	}

	assert.Check(t, r.Stop())

	_, serr := os.Stat(r.WorkDir())
	assert.Check(t, os.IsNotExist(serr))

	_, ok := <-r.Logs()
	assert.Check(t, !ok)
}

func TestRelay_StopKillsStubbornRelay(t *testing.T) {
	ctx := testcontext.Background()
	conf := fakeConfig(t, "--mode", "ignore-interrupt")
	conf.StopTimeout = 200 * time.Millisecond

	r, err := Start(ctx, conf)
	assert.Assert(t, err)

	err = r.Stop()
	assert.Check(t, cmp.ErrorIs(err, ErrSignal))
	assert.Check(t, cmp.ErrorIs(r.Stop(), ErrSignal))

	_, serr := os.Stat(r.WorkDir())
	assert.Check(t, os.IsNotExist(serr))
}
