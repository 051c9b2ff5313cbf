package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-voiceover/internal/config"
	"github.com/loqalabs/loqa-voiceover/internal/protocol"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startServer(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitPublishesOnPrefixedSubject(t *testing.T) {
	ns := startServer(t)

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer sub.Close()
	msgs, err := sub.SubscribeSync("voiceover.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	cfg := config.BusConfig{Servers: []string{ns.ClientURL()}, ConnectTimeout: 2000, SubjectPrefix: "voiceover"}
	client, err := Connect(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if !client.Healthy() {
		t.Fatal("expected healthy client")
	}

	evt := protocol.JobEvent{RunID: "run-1", Type: protocol.EventJobCompleted, File: "job1.json", Outcome: "ok"}
	if err := client.Emit(context.Background(), evt); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}

	msg, err := msgs.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	if msg.Subject != "voiceover.job.completed" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	var got protocol.JobEvent
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.File != "job1.json" || got.Outcome != "ok" || got.Timestamp.IsZero() {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}
