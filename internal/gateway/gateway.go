// Package gateway terminates the persistent worker channel: it upgrades
// HTTP connections to WebSocket, authenticates registrations, and routes
// framed messages between workers and the orchestrator. One goroutine reads
// each connection; writes are serialized per connection.
package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/app/account"
	"github.com/iris-network/iris/internal/app/orchestrate"
	"github.com/iris-network/iris/internal/app/token"
	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/infra/breaker"
	"github.com/iris-network/iris/internal/infra/metrics"
	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/reputation"
	"github.com/iris-network/iris/internal/log"
	"github.com/iris-network/iris/internal/protocol"
	"github.com/iris-network/iris/internal/security"
)

const (
	writeTimeout = 10 * time.Second
	// registerTimeout bounds how long an upgraded connection may idle
	// before sending its NODE_REGISTER.
	registerTimeout = 30 * time.Second
	// readLimit caps a single frame. Results carry full responses, so the
	// limit is generous.
	readLimit = 16 << 20
)

// Gateway accepts worker connections and routes their frames.
type Gateway struct {
	store    domain.Store
	registry *registry.Registry
	selector *registry.Selector
	breakers *breaker.Manager
	rep      *reputation.Engine
	accounts *account.Service
	tokens   *token.Service
	orc      *orchestrate.Orchestrator
	keypair  *security.Keypair
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	classify classifyRouter
}

// New wires a gateway over the shared coordinator state.
func New(
	store domain.Store,
	reg *registry.Registry,
	sel *registry.Selector,
	breakers *breaker.Manager,
	rep *reputation.Engine,
	accounts *account.Service,
	tokens *token.Service,
	orc *orchestrate.Orchestrator,
	keypair *security.Keypair,
) *Gateway {
	return &Gateway{
		store:    store,
		registry: reg,
		selector: sel,
		breakers: breakers,
		rep:      rep,
		accounts: accounts,
		tokens:   tokens,
		orc:      orc,
		keypair:  keypair,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Workers are not browsers; origin checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log.WithComponent("gateway"),
		classify: classifyRouter{
			waiters: make(map[string]chan classifyReply),
		},
	}
}

// conn wraps one worker socket. Send serializes writes so the orchestrator,
// heartbeat acks, and broadcasts never interleave frames.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) Send(f *protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) sendError(code, message string) {
	f, err := protocol.NewFrame(protocol.MsgError, protocol.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	_ = c.Send(f)
}

// HandleWorker is the HTTP endpoint workers connect to. It blocks for the
// lifetime of the connection.
func (g *Gateway) HandleWorker(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade failed")
		return
	}
	ws.SetReadLimit(readLimit)
	c := &conn{ws: ws}
	defer ws.Close()

	nodeID, err := g.awaitRegistration(c)
	if err != nil {
		g.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("registration rejected")
		return
	}

	g.updatePoolGauges()
	defer g.cleanup(c, nodeID)

	g.readPump(c, nodeID)
}

// awaitRegistration reads and validates the first frame, which must be a
// NODE_REGISTER, and admits the worker into the pool.
func (g *Gateway) awaitRegistration(c *conn) (string, error) {
	c.ws.SetReadDeadline(time.Now().Add(registerTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	c.ws.SetReadDeadline(time.Time{})

	frame, err := protocol.Decode(data)
	if err != nil {
		c.sendError("bad_frame", err.Error())
		return "", err
	}
	if frame.Type != protocol.MsgNodeRegister {
		c.sendError("register_first", "first frame must be node_register")
		return "", domain.ErrInvalidFormat
	}

	var p protocol.RegisterPayload
	if err := protocol.ParsePayload(frame, &p); err != nil {
		c.sendError("bad_payload", err.Error())
		return "", err
	}
	if p.NodeID == "" || p.PublicKey == "" {
		c.sendError("bad_payload", "node_id and public_key are required")
		return "", domain.ErrInvalidFormat
	}

	accountID, err := g.authorize(p)
	if err != nil {
		c.sendError("unauthorized", "invalid account key or enrollment token")
		return "", err
	}

	caps := p.Capabilities
	tier := registry.TierFor(caps.VRAMGB, caps.ModelParamsB, caps.TokensPerSecond)
	node := domain.Node{
		ID:              p.NodeID,
		AccountID:       accountID,
		PublicKey:       p.PublicKey,
		ModelName:       caps.ModelName,
		MaxContext:      caps.MaxContext,
		VRAMGB:          caps.VRAMGB,
		GPUName:         caps.GPUName,
		ModelParamsB:    caps.ModelParamsB,
		Quantization:    caps.Quantization,
		TokensPerSecond: caps.TokensPerSecond,
		Tier:            tier,
		SupportsVision:  caps.SupportsVision,
		Reputation:      domain.InitialReputation,
	}
	if err := g.store.UpsertNode(node); err != nil {
		c.sendError("internal", "registration could not be persisted")
		return "", err
	}
	if accountID != "" {
		if err := g.store.LinkNodeToAccount(p.NodeID, accountID); err != nil {
			g.logger.Error().Err(err).Str("node_id", p.NodeID).Msg("link node to account")
		}
		if err := g.store.TouchAccount(accountID); err != nil {
			g.logger.Warn().Err(err).Str("account_id", accountID).Msg("touch account")
		}
	}

	// The persisted row is authoritative for reputation and lifetime
	// counters; re-read it before admitting the node to the live pool.
	persisted, err := g.store.GetNode(p.NodeID)
	if err == nil {
		node = *persisted
	}
	g.registry.Register(node, c)

	ack, err := protocol.NewFrame(protocol.MsgRegisterAck, protocol.RegisterAckPayload{
		NodeID:               p.NodeID,
		Tier:                 string(tier),
		CoordinatorPublicKey: g.keypair.PublicKey(),
		AccountID:            accountID,
	})
	if err != nil {
		return "", err
	}
	if err := c.Send(ack); err != nil {
		g.registry.Deregister(p.NodeID, c)
		return "", err
	}
	return p.NodeID, nil
}

// authorize resolves the registration credential to an account, or to no
// account for single-use enrollment tokens.
func (g *Gateway) authorize(p protocol.RegisterPayload) (string, error) {
	switch {
	case p.AccountKey != "":
		acct, err := g.accounts.Verify(p.AccountKey)
		if err != nil {
			return "", err
		}
		return acct.ID, nil
	case p.EnrollmentToken != "":
		if _, err := g.tokens.Redeem(p.EnrollmentToken, p.NodeID); err != nil {
			return "", err
		}
		return "", nil
	default:
		return "", domain.ErrUnauthorized
	}
}

// readPump processes frames until the connection drops or the worker says
// goodbye. The channel identity, not the payload, names the sender.
func (g *Gateway) readPump(c *conn, nodeID string) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			g.logger.Info().Str("node_id", nodeID).Err(err).Msg("worker channel closed")
			return
		}
		frame, err := protocol.Decode(data)
		if err != nil {
			c.sendError("bad_frame", err.Error())
			continue
		}
		if done := g.route(c, nodeID, frame); done {
			return
		}
	}
}

// route dispatches one frame. Returns true when the connection should end.
func (g *Gateway) route(c *conn, nodeID string, frame *protocol.Frame) bool {
	switch frame.Type {
	case protocol.MsgHeartbeat:
		var p protocol.HeartbeatPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		latency, err := g.registry.Heartbeat(nodeID, p.CurrentLoad, p.TokensPerSecond, p.SentAt)
		if err != nil {
			c.sendError("not_registered", err.Error())
			return false
		}
		metrics.HeartbeatLatency.Observe(latency)
		g.updatePoolGauges()
		ack, err := protocol.NewFrame(protocol.MsgHeartbeatAck, protocol.HeartbeatAckPayload{
			NodeID:    nodeID,
			LatencyMS: latency,
		})
		if err == nil {
			_ = c.Send(ack)
		}

	case protocol.MsgTaskResult:
		var p protocol.TaskResultPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		g.orc.HandleTaskResult(nodeID, p)

	case protocol.MsgTaskError:
		var p protocol.TaskErrorPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		g.orc.HandleTaskError(nodeID, p)

	case protocol.MsgTaskStream:
		var p protocol.TaskStreamPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		g.orc.HandleTaskStream(nodeID, p)

	case protocol.MsgClassifyResult:
		var p protocol.ClassifyResultPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		g.classify.resolve(p.RequestID, classifyReply{verdict: p.Difficulty})

	case protocol.MsgClassifyError:
		var p protocol.ClassifyErrorPayload
		if err := protocol.ParsePayload(frame, &p); err != nil {
			c.sendError("bad_payload", err.Error())
			return false
		}
		g.classify.resolve(p.RequestID, classifyReply{err: domain.ErrWorkerError})

	case protocol.MsgDisconnect:
		var p protocol.DisconnectPayload
		_ = protocol.ParsePayload(frame, &p)
		g.logger.Info().Str("node_id", nodeID).Str("reason", p.Reason).Msg("worker disconnecting")
		return true

	default:
		c.sendError("unknown_type", "unsupported frame type: "+string(frame.Type))
	}
	return false
}

// cleanup settles a departed worker's session: breaker state clears,
// uptime is credited. It applies only while this connection is still the
// node's live channel; after a re-registration the stale socket closing is
// a no-op.
func (g *Gateway) cleanup(c *conn, nodeID string) {
	session, removed := g.registry.Deregister(nodeID, c)
	if !removed {
		return
	}
	g.breakers.Reset(nodeID)
	if session > 0 {
		g.rep.SessionEnded(nodeID, session, 0)
	}
	if err := g.store.UpdateNodeLastSeen(nodeID); err != nil {
		g.logger.Warn().Err(err).Str("node_id", nodeID).Msg("record last seen")
	}
	g.updatePoolGauges()
}

func (g *Gateway) updatePoolGauges() {
	connected, online := g.registry.Counts()
	metrics.NodesConnected.Set(float64(connected))
	metrics.NodesOnline.Set(float64(online))
}
