package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iris-network/iris/internal/app/account"
	"github.com/iris-network/iris/internal/app/orchestrate"
	"github.com/iris-network/iris/internal/app/token"
	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/infra/breaker"
	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/reputation"
	"github.com/iris-network/iris/internal/infra/sqlite"
	"github.com/iris-network/iris/internal/infra/stream"
	"github.com/iris-network/iris/internal/protocol"
	"github.com/iris-network/iris/internal/security"
)

// ═══ Gateway Tests ══════════════════════════════════════════════════════════

type fixedClassifier struct{}

func (fixedClassifier) Classify(context.Context, string, int) domain.Difficulty {
	return domain.Simple
}

type env struct {
	store    *sqlite.DB
	reg      *registry.Registry
	accounts *account.Service
	tokens   *token.Service
	orc      *orchestrate.Orchestrator
	gw       *Gateway
	srv      *httptest.Server
	kp       *security.Keypair
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	kp, err := security.GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}

	reg := registry.New()
	brk := breaker.NewManager()
	sel := registry.NewSelector(reg, brk, 7)
	rep := reputation.NewEngine(db)
	hub := stream.NewHub()
	accounts := account.NewService(db)
	tokens := token.NewService(db)

	orc := orchestrate.New(db, reg, sel, brk, rep, hub, fixedClassifier{}, nil, kp)
	orc.RetryBase = time.Millisecond
	orc.Timeouts = map[domain.Difficulty]time.Duration{
		domain.Simple:   2 * time.Second,
		domain.Complex:  2 * time.Second,
		domain.Advanced: 2 * time.Second,
	}

	gw := New(db, reg, sel, brk, rep, accounts, tokens, orc, kp)
	srv := httptest.NewServer(http.HandlerFunc(gw.HandleWorker))
	t.Cleanup(srv.Close)

	return &env{store: db, reg: reg, accounts: accounts, tokens: tokens, orc: orc, gw: gw, srv: srv, kp: kp}
}

func dial(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func writeFrame(t *testing.T, ws *websocket.Conn, typ protocol.MessageType, payload any) {
	t.Helper()
	frame, err := protocol.NewFrame(typ, payload)
	if err != nil {
		t.Fatalf("frame %s: %v", typ, err)
	}
	data, err := frame.Encode()
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) *protocol.Frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	frame, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func capabilities() protocol.Capabilities {
	return protocol.Capabilities{
		ModelName:       "llama-3-13b",
		MaxContext:      8192,
		VRAMGB:          16,
		GPUName:         "RTX 4080",
		ModelParamsB:    13,
		Quantization:    "Q5_K_M",
		TokensPerSecond: 30,
	}
}

// register performs a full registration handshake and returns the ack.
func register(t *testing.T, e *env, ws *websocket.Conn, nodeID string, kp *security.Keypair, p protocol.RegisterPayload) protocol.RegisterAckPayload {
	t.Helper()
	p.NodeID = nodeID
	p.PublicKey = kp.PublicKey()
	if p.Capabilities.ModelName == "" {
		p.Capabilities = capabilities()
	}
	writeFrame(t, ws, protocol.MsgNodeRegister, p)

	frame := readFrame(t, ws)
	if frame.Type != protocol.MsgRegisterAck {
		t.Fatalf("expected register_ack, got %s: %s", frame.Type, frame.Payload)
	}
	var ack protocol.RegisterAckPayload
	if err := protocol.ParsePayload(frame, &ack); err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	return ack
}

// ─── Registration ───────────────────────────────────────────────────────────

func TestRegisterWithAccountKey(t *testing.T) {
	e := newEnv(t)
	acct, key, err := e.accounts.Create()
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	ack := register(t, e, ws, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	if ack.Tier != "standard" {
		t.Errorf("tier = %s, want standard", ack.Tier)
	}
	if ack.AccountID != acct.ID {
		t.Errorf("account id = %s, want %s", ack.AccountID, acct.ID)
	}
	if ack.CoordinatorPublicKey != e.kp.PublicKey() {
		t.Error("ack missing coordinator public key")
	}

	n, err := e.store.GetNode("node-1")
	if err != nil {
		t.Fatalf("node not persisted: %v", err)
	}
	if n.AccountID != acct.ID || n.Tier != domain.TierStandard {
		t.Errorf("persisted node = %+v", n)
	}
	if count, _ := e.store.CountAccountNodes(acct.ID); count != 1 {
		t.Errorf("account node count = %d, want 1", count)
	}
	if _, ok := e.reg.Get("node-1"); !ok {
		t.Error("node not admitted to the live pool")
	}
}

func TestRegisterWithEnrollmentToken(t *testing.T) {
	e := newEnv(t)
	_, plaintext, err := e.tokens.Generate("rack-7", time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	ack := register(t, e, ws, "node-1", kp, protocol.RegisterPayload{EnrollmentToken: plaintext})
	if ack.AccountID != "" {
		t.Errorf("token registration should not carry an account, got %s", ack.AccountID)
	}

	// The token is single-use: a second worker presenting it is rejected.
	kp2, _ := security.GenerateKeypair()
	ws2 := dial(t, e)
	writeFrame(t, ws2, protocol.MsgNodeRegister, protocol.RegisterPayload{
		NodeID:          "node-2",
		PublicKey:       kp2.PublicKey(),
		EnrollmentToken: plaintext,
		Capabilities:    capabilities(),
	})
	frame := readFrame(t, ws2)
	if frame.Type != protocol.MsgError {
		t.Fatalf("reused token accepted: %s", frame.Type)
	}
}

func TestRegisterRejectsMissingCredentials(t *testing.T) {
	e := newEnv(t)
	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)

	writeFrame(t, ws, protocol.MsgNodeRegister, protocol.RegisterPayload{
		NodeID:       "node-1",
		PublicKey:    kp.PublicKey(),
		Capabilities: capabilities(),
	})
	frame := readFrame(t, ws)
	if frame.Type != protocol.MsgError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
	var p protocol.ErrorPayload
	if err := protocol.ParsePayload(frame, &p); err != nil || p.Code != "unauthorized" {
		t.Errorf("error payload = %+v, %v", p, err)
	}
}

func TestFirstFrameMustBeRegister(t *testing.T) {
	e := newEnv(t)
	ws := dial(t, e)

	writeFrame(t, ws, protocol.MsgHeartbeat, protocol.HeartbeatPayload{NodeID: "node-1"})
	frame := readFrame(t, ws)
	if frame.Type != protocol.MsgError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
}

// ─── Liveness ───────────────────────────────────────────────────────────────

func TestHeartbeatAck(t *testing.T) {
	e := newEnv(t)
	_, key, _ := e.accounts.Create()

	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	register(t, e, ws, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	writeFrame(t, ws, protocol.MsgHeartbeat, protocol.HeartbeatPayload{
		NodeID:      "node-1",
		CurrentLoad: 2,
		SentAt:      float64(time.Now().UnixNano()) / 1e9,
	})
	frame := readFrame(t, ws)
	if frame.Type != protocol.MsgHeartbeatAck {
		t.Fatalf("expected heartbeat_ack, got %s", frame.Type)
	}
	var ack protocol.HeartbeatAckPayload
	if err := protocol.ParsePayload(frame, &ack); err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if ack.NodeID != "node-1" || ack.LatencyMS < 0 {
		t.Errorf("ack = %+v", ack)
	}

	if cn, ok := e.reg.Get("node-1"); !ok || cn.CurrentLoad != 2 {
		t.Errorf("heartbeat load not recorded: %+v", cn)
	}
}

func TestUnknownFrameAnsweredWithError(t *testing.T) {
	e := newEnv(t)
	_, key, _ := e.accounts.Create()
	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	register(t, e, ws, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	writeFrame(t, ws, protocol.MessageType("bogus"), struct{}{})
	frame := readFrame(t, ws)
	if frame.Type != protocol.MsgError {
		t.Fatalf("expected error frame, got %s", frame.Type)
	}
}

func TestDisconnectRemovesFromPool(t *testing.T) {
	e := newEnv(t)
	_, key, _ := e.accounts.Create()
	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	register(t, e, ws, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	writeFrame(t, ws, protocol.MsgDisconnect, protocol.DisconnectPayload{NodeID: "node-1", Reason: "shutdown"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := e.reg.Get("node-1"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("node still in the live pool after disconnect")
}

func TestReconnectSurvivesStaleSocketClose(t *testing.T) {
	e := newEnv(t)
	_, key, _ := e.accounts.Create()
	kp, _ := security.GenerateKeypair()

	wsOld := dial(t, e)
	register(t, e, wsOld, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	// The worker reconnects before its old socket is torn down.
	wsNew := dial(t, e)
	register(t, e, wsNew, "node-1", kp, protocol.RegisterPayload{AccountKey: key})

	wsOld.Close()
	time.Sleep(250 * time.Millisecond)

	if _, ok := e.reg.Get("node-1"); !ok {
		t.Fatal("stale socket close evicted the reconnected node")
	}

	// The replacement channel still serves the node.
	writeFrame(t, wsNew, protocol.MsgHeartbeat, protocol.HeartbeatPayload{
		NodeID: "node-1",
		SentAt: float64(time.Now().UnixNano()) / 1e9,
	})
	if frame := readFrame(t, wsNew); frame.Type != protocol.MsgHeartbeatAck {
		t.Fatalf("expected heartbeat_ack on the new channel, got %s", frame.Type)
	}
}

// ─── End-to-End Task Round Trip ─────────────────────────────────────────────

// pump runs a worker client: it answers every TASK_ASSIGN by decrypting the
// prompt and returning it sealed for the coordinator.
func pump(t *testing.T, e *env, ws *websocket.Conn, nodeID string, kp *security.Keypair, coordPub string) {
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			frame, err := protocol.Decode(data)
			if err != nil || frame.Type != protocol.MsgTaskAssign {
				continue
			}
			var p protocol.TaskAssignPayload
			if err := protocol.ParsePayload(frame, &p); err != nil {
				continue
			}
			prompt, err := kp.Open(coordPub, p.EncryptedPrompt)
			if err != nil {
				continue
			}
			sealed, err := kp.Seal(coordPub, []byte("answer: "+string(prompt)))
			if err != nil {
				continue
			}
			out, err := protocol.NewFrame(protocol.MsgTaskResult, protocol.TaskResultPayload{
				SubtaskID:         p.SubtaskID,
				TaskID:            p.TaskID,
				NodeID:            nodeID,
				EncryptedResponse: sealed,
				ExecutionTimeMS:   17,
			})
			if err != nil {
				continue
			}
			raw, err := out.Encode()
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}()
}

func TestTaskRoundTripOverSocket(t *testing.T) {
	e := newEnv(t)
	_, key, _ := e.accounts.Create()

	kp, _ := security.GenerateKeypair()
	ws := dial(t, e)
	ack := register(t, e, ws, "node-1", kp, protocol.RegisterPayload{AccountKey: key})
	pump(t, e, ws, "node-1", kp, ack.CoordinatorPublicKey)

	task, err := e.orc.CreateTask(context.Background(), orchestrate.Request{
		PrincipalID: "acct-1",
		Prompt:      "What is the speed of light?",
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done, err := e.store.GetTask(task.ID)
		if err == nil && done.IsTerminal() {
			if done.Status != domain.TaskCompleted {
				t.Fatalf("status = %s (%q)", done.Status, done.FinalResponse)
			}
			if done.FinalResponse != "answer: What is the speed of light?" {
				t.Errorf("final response = %q", done.FinalResponse)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("task never settled")
}
