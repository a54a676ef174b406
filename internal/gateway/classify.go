package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/protocol"
)

// classifyTimeout bounds one remote classification round trip. Past it the
// caller falls back to its local classifier.
const classifyTimeout = 10 * time.Second

type classifyReply struct {
	verdict string
	err     error
}

// classifyRouter matches CLASSIFY_RESULT frames to the request that asked.
type classifyRouter struct {
	mu      sync.Mutex
	waiters map[string]chan classifyReply
}

func (r *classifyRouter) arm(requestID string) <-chan classifyReply {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan classifyReply, 1)
	r.waiters[requestID] = ch
	return ch
}

func (r *classifyRouter) drop(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, requestID)
}

func (r *classifyRouter) resolve(requestID string, reply classifyReply) {
	r.mu.Lock()
	ch, ok := r.waiters[requestID]
	if ok {
		delete(r.waiters, requestID)
	}
	r.mu.Unlock()
	if ok {
		ch <- reply
	}
}

// ClassifyRemote offloads difficulty classification to the fastest online
// worker. It satisfies the remote hook of the worker-backed classifier.
func (g *Gateway) ClassifyRemote(ctx context.Context, prompt string) (string, error) {
	cn, err := g.selector.FastestAvailable()
	if err != nil {
		return "", err
	}

	requestID := uuid.NewString()
	ch := g.classify.arm(requestID)

	frame, err := protocol.NewFrame(protocol.MsgClassifyAssign, protocol.ClassifyAssignPayload{
		RequestID: requestID,
		Prompt:    prompt,
	})
	if err != nil {
		g.classify.drop(requestID)
		return "", err
	}
	if err := g.registry.Send(cn.Node.ID, frame); err != nil {
		g.classify.drop(requestID)
		return "", err
	}

	timer := time.NewTimer(classifyTimeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply.verdict, reply.err
	case <-ctx.Done():
		g.classify.drop(requestID)
		return "", ctx.Err()
	case <-timer.C:
		g.classify.drop(requestID)
		return "", domain.ErrTimeout
	}
}
