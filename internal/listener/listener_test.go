package listener

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type recordingTarget struct {
	forgot   []string
	reloaded []string
	err      error
}

func (r *recordingTarget) Forget(id string) bool {
	r.forgot = append(r.forgot, id)
	return true
}

func (r *recordingTarget) Reload(_ context.Context, id string) error {
	r.reloaded = append(r.reloaded, id)
	return r.err
}

func TestHandle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	target := &recordingTarget{err: errors.New("not found")}

	payloads := []string{
		`{"op":"forget","fixtureId":"fx1","ts":1}`,
		`{"op":"reload","fixtureId":"fx2"}`,
		`{"op":"reload","fixtureId":"fx3"}`,
		`{"op":"explode","fixtureId":"fx4"}`,
		`{"op":"forget"}`,
		`not json`,
	}
	for _, p := range payloads {
		Handle(context.Background(), target, p, logger)
	}

	if len(target.forgot) != 1 || target.forgot[0] != "fx1" {
		t.Errorf("forgot = %v, want [fx1]", target.forgot)
	}
	if len(target.reloaded) != 2 || target.reloaded[0] != "fx2" || target.reloaded[1] != "fx3" {
		t.Errorf("reloaded = %v, want [fx2 fx3]", target.reloaded)
	}
}
