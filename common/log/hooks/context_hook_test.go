package hooks

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestContextHookAddsCaller(t *testing.T) {
	logger := log.New()
	buf := &bytes.Buffer{}
	logger.Out = buf
	logger.Formatter = &log.TextFormatter{DisableColors: true}
	logger.AddHook(NewContextHook())

	logger.WithFields(log.Fields{"jobID": "j1"}).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "hooks/context_hook_test.go:") {
		t.Fatalf("expected caller in entry, got %q", out)
	}
}
