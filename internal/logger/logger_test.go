package logger

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"
)

func resetLogger(buf *bytes.Buffer) {
	logger = nil
	once = sync.Once{}
	once.Do(func() { logger = log.New(buf, "", 0) })
}

func TestLoggerFunctionsCalled(t *testing.T) {
	var buf bytes.Buffer
	resetLogger(&buf)
	SetLevel("debug")
	defer SetLevel("info")

	Info("info message")
	Warn("warn message")
	Error("error message")
	Debug("debug message")

	output := buf.String()
	for _, want := range []string{"INFO: info message", "WARN: warn message", "ERROR: error message", "DEBUG: debug message"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output: %s", want, output)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	resetLogger(&buf)
	SetLevel("warn")
	defer SetLevel("info")

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown %d", 1)

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("messages below warn were written: %s", output)
	}
	if !strings.Contains(output, "WARN: shown 1") {
		t.Errorf("warn message missing: %s", output)
	}
}

func TestComponentPrefix(t *testing.T) {
	var buf bytes.Buffer
	resetLogger(&buf)

	Component("etl.extract").Info("fetched %s", "louisville_us")

	if !strings.Contains(buf.String(), "INFO: [etl.extract] fetched louisville_us") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestMessageWithoutArgsKeepsPercent(t *testing.T) {
	var buf bytes.Buffer
	resetLogger(&buf)

	Info("100% done")

	if !strings.Contains(buf.String(), "100% done") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestFirstUseFromManyGoroutines(t *testing.T) {
	logger = nil
	once = sync.Once{}
	defer resetLogger(&bytes.Buffer{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Component("worker").Info("started %d", i)
		}(i)
	}
	wg.Wait()

	if logger == nil {
		t.Fatal("logger was not initialised")
	}
}
