package log_test

import (
	"bytes"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/evote-tally/log"
)

func TestPanicOnErrorHook(t *testing.T) {
	c := qt.New(t)

	c.Run("fires on Errorw", func(c *qt.C) {
		ch := make(chan string, 1)
		previous := log.EnablePanicOnErrorWithHandler(c.Name(), 50*time.Millisecond, func(msg string) {
			ch <- msg
		})
		defer log.RestoreLogger(previous)

		log.Errorw(nil, "tally aborted")

		select {
		case got := <-ch:
			c.Assert(got, qt.Matches, `ERROR found in logs during test TestPanicOnErrorHook/fires_on_Errorw: tally aborted`)
		case <-time.After(500 * time.Millisecond):
			c.Fatalf("expected handler to fire")
		}
	})

	c.Run("ignores warnings", func(c *qt.C) {
		ch := make(chan string, 1)
		previous := log.EnablePanicOnErrorWithHandler(c.Name(), 50*time.Millisecond, func(msg string) {
			ch <- msg
		})
		defer log.RestoreLogger(previous)

		log.Warnw("ballot could not be decrypted", "index", 3)
		log.Info("still fine")

		select {
		case got := <-ch:
			c.Fatalf("unexpected handler call: %s", got)
		case <-time.After(150 * time.Millisecond):
		}
	})
}

func TestErrorOutputOnlyGetsWarnings(t *testing.T) {
	c := qt.New(t)
	previous := *log.Logger()
	defer log.RestoreLogger(previous)

	var errOut bytes.Buffer
	log.Init(log.LogLevelDebug, "stderr", &errOut)

	log.Debugw("fetching ballot", "index", 1)
	log.Infow("tally completed", "ballots", 3)
	c.Assert(errOut.Len(), qt.Equals, 0)

	log.Warnw("ledger endpoint disabled", "uri", "http://127.0.0.1:8545")
	c.Assert(errOut.String(), qt.Contains, "ledger endpoint disabled")
}

func TestValidLevel(t *testing.T) {
	c := qt.New(t)
	for _, l := range []string{"debug", "info", "warn", "error"} {
		c.Assert(log.ValidLevel(l), qt.IsTrue)
	}
	c.Assert(log.ValidLevel("trace"), qt.IsFalse)
	c.Assert(log.ValidLevel(""), qt.IsFalse)
}
