//
// Ensemble Works is pleased to support the open source community by making ensemble available.
//
// Copyright (C) 2025 Ensemble Works.  All rights reserved.
//
// ensemble is licensed under the Apache License Version 2.0.
//
//

// Package runner orchestrates agent turns: security gate, session and
// context assembly, model invocation, tool execution and handoff
// post-processing behind sync, async and streaming entry points.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ensembleworks/ensemble/agent"
	"github.com/ensembleworks/ensemble/auth"
	"github.com/ensembleworks/ensemble/handoff"
	"github.com/ensembleworks/ensemble/log"
	"github.com/ensembleworks/ensemble/model"
	"github.com/ensembleworks/ensemble/session"
	"github.com/ensembleworks/ensemble/session/inmemory"
	"github.com/ensembleworks/ensemble/telemetry"
	"github.com/ensembleworks/ensemble/template"
	"github.com/ensembleworks/ensemble/tool"
)

// Defaults for turn execution.
const (
	DefaultTurnTimeout  = 30 * time.Second
	DefaultEventTimeout = 10 * time.Second
	DefaultPoolSize     = 64
	defaultToolRounds   = 5
)

type ctxKey int

// asyncExecKey marks contexts running inside the async executor so a
// nested sync call can be refused instead of deadlocking.
const asyncExecKey ctxKey = iota

// Runner executes turns against registered agent templates.
type Runner struct {
	templates *template.Registry
	sessions  session.Service
	gate      *auth.Gate
	engine    *handoff.Engine
	tools     *tool.Registry
	pool      *ants.Pool

	turnTimeout      time.Duration
	eventTimeout     time.Duration
	maxMessages      int
	maxContentLength int
}

// Option configures a Runner.
type Option func(*Runner)

// WithSessionService sets the session backend.
func WithSessionService(svc session.Service) Option {
	return func(r *Runner) { r.sessions = svc }
}

// WithGate sets the security gate.
func WithGate(g *auth.Gate) Option {
	return func(r *Runner) { r.gate = g }
}

// WithHandoffEngine sets the handoff engine.
func WithHandoffEngine(e *handoff.Engine) Option {
	return func(r *Runner) { r.engine = e }
}

// WithToolRegistry sets the registry consulted for tool permissions.
func WithToolRegistry(t *tool.Registry) Option {
	return func(r *Runner) { r.tools = t }
}

// WithTurnTimeout sets the total per-turn budget.
func WithTurnTimeout(d time.Duration) Option {
	return func(r *Runner) { r.turnTimeout = d }
}

// WithEventTimeout sets the per-streamed-event budget.
func WithEventTimeout(d time.Duration) Option {
	return func(r *Runner) { r.eventTimeout = d }
}

// WithContextLimits bounds fresh per-session contexts.
func WithContextLimits(maxMessages, maxContentLength int) Option {
	return func(r *Runner) {
		r.maxMessages = maxMessages
		r.maxContentLength = maxContentLength
	}
}

// New creates a runner. Components left unset get in-process defaults.
func New(templates *template.Registry, opts ...Option) (*Runner, error) {
	if templates == nil {
		return nil, errors.New("template registry is required")
	}
	r := &Runner{
		templates:    templates,
		turnTimeout:  DefaultTurnTimeout,
		eventTimeout: DefaultEventTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = inmemory.NewSessionService()
	}
	if r.gate == nil {
		gate, err := auth.NewGate()
		if err != nil {
			return nil, err
		}
		r.gate = gate
	}
	if r.engine == nil {
		r.engine = handoff.NewEngine(templates)
	}
	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// Close releases the worker pool.
func (r *Runner) Close() {
	r.pool.Release()
}

// RunTurn executes one synchronous turn. Failures come back on the
// result, never as a panic or raw error.
func (r *Runner) RunTurn(ctx context.Context, agentName, input string, opts ...TurnOption) *TurnResult {
	o := &TurnOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if ctx.Value(asyncExecKey) != nil {
		return failure(o.SessionID, input, ErrAsyncReentry)
	}
	ctx, cancel := context.WithTimeout(ctx, r.turnTimeout)
	defer cancel()
	result := r.runTurn(ctx, agentName, input, o)
	telemetry.CountTurn(ctx, turnOutcome(result))
	return result
}

// RunTurnAsync schedules a turn on the worker pool and delivers the
// result on the returned channel.
func (r *Runner) RunTurnAsync(ctx context.Context, agentName, input string, opts ...TurnOption) (<-chan *TurnResult, error) {
	o := &TurnOptions{}
	for _, opt := range opts {
		opt(o)
	}
	out := make(chan *TurnResult, 1)
	task := func() {
		defer close(out)
		tctx, cancel := context.WithTimeout(context.WithValue(ctx, asyncExecKey, struct{}{}), r.turnTimeout)
		defer cancel()
		result := r.runTurn(tctx, agentName, input, o)
		telemetry.CountTurn(tctx, turnOutcome(result))
		out <- result
	}
	if err := r.pool.Submit(task); err != nil {
		return nil, fmt.Errorf("submit turn: %w", err)
	}
	return out, nil
}

func turnOutcome(result *TurnResult) string {
	if result.Success {
		return "success"
	}
	return string(result.ErrorKind)
}

// turnState is the prepared pipeline state shared by the sync and
// streaming paths.
type turnState struct {
	sess  *session.Session
	c     *agent.Context
	ag    *agent.Agent
	auth  *auth.AuthResult
	input string

	modelCalls int
	tokensUsed int
}

// prepareTurn runs pipeline steps 1-5: gate, session resolution, context
// assembly, system synthesis and agent preparation.
func (r *Runner) prepareTurn(ctx context.Context, agentName, input string, o *TurnOptions) (*turnState, error) {
	authRes, err := r.gate.Authenticate(ctx, o.APIKey, o.JWT)
	if err != nil {
		telemetry.CountAuthDenial(ctx, "authenticate")
		return nil, err
	}
	if err := r.gate.CheckLimit(ctx, auth.ResourceModel, authRes.UserID); err != nil {
		telemetry.CountAuthDenial(ctx, "rate_limit")
		return nil, err
	}
	if err := r.gate.CheckQuota(authRes.UserID, auth.QuotaModelCalls, 1); err != nil {
		telemetry.CountAuthDenial(ctx, "quota")
		return nil, err
	}
	filtered, err := r.gate.CheckContent(input)
	if err != nil {
		telemetry.CountAuthDenial(ctx, "content")
		return nil, err
	}
	input = filtered

	sess, err := r.resolveSession(ctx, o, authRes)
	if err != nil {
		return nil, err
	}
	c := sess.Context
	if o.Context != nil {
		c = o.Context
		c.SessionID = sess.ID
	}
	c.AddMessage(model.RoleUser, input)

	// Failures past this point return the partial state so the rejected
	// turn can still be recorded on the session.
	state := &turnState{sess: sess, c: c, auth: authRes, input: input}

	ag, err := r.templates.BuildAgent(ctx, agentName)
	if err != nil {
		return state, err
	}
	instructions := ag.Instructions
	if o.SystemOverride != "" {
		instructions = o.SystemOverride
	}
	instructions = instructions + "\n\n" + c.UserInfoBlock()
	ag = r.engine.Normalize(ag.Clone(agent.WithInstructions(instructions)))

	if err := r.checkToolPermissions(ag, authRes); err != nil {
		telemetry.CountAuthDenial(ctx, "permission")
		return state, err
	}
	state.ag = ag
	return state, nil
}

// resolveSession loads the caller's session or starts a fresh one. An
// unresolvable session id starts fresh rather than failing; a session
// the caller may not write to fails the turn. Resumed contexts are
// materialized through a session bridge bound to the caller identity.
func (r *Runner) resolveSession(ctx context.Context, o *TurnOptions, authRes *auth.AuthResult) (*session.Session, error) {
	if o.SessionID != "" {
		sess, err := r.sessions.GetSession(ctx, o.SessionID)
		if err == nil {
			if !session.CanWrite(sess, authRes.UserID, authRes.Roles) {
				telemetry.CountAuthDenial(ctx, "session_access")
				return nil, fmt.Errorf("session %s: %w", o.SessionID, session.ErrAccessDenied)
			}
			bridge := session.NewBridge(r.sessions, sess.ID, authRes.UserID, o.UserName,
				session.WithCallerRoles(authRes.Roles...))
			c, err := bridge.GetContext(ctx, false)
			if err != nil {
				return nil, err
			}
			sess.Context = c
			return sess, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}
		log.Debugf("session %s not found, starting fresh", o.SessionID)
	}
	c := o.Context
	if c == nil {
		var copts []agent.ContextOption
		if r.maxMessages > 0 {
			copts = append(copts, agent.WithMaxMessages(r.maxMessages))
		}
		if r.maxContentLength > 0 {
			copts = append(copts, agent.WithMaxContentLength(r.maxContentLength))
		}
		c = agent.NewContext(authRes.UserID, o.UserName, copts...)
	}
	c.Permissions = append([]string(nil), authRes.Permissions...)
	c.Roles = append([]string(nil), authRes.Roles...)
	return r.sessions.CreateSession(ctx, c)
}

// checkToolPermissions enforces registry-declared tool permissions
// against the caller identity.
func (r *Runner) checkToolPermissions(ag *agent.Agent, authRes *auth.AuthResult) error {
	if r.tools == nil {
		return nil
	}
	for _, t := range ag.Tools {
		decl := t.Declaration()
		if decl == nil {
			continue
		}
		required := r.tools.RequiredPermission(decl.Name)
		if required == "" {
			continue
		}
		if err := r.gate.RequirePermission(authRes, required); err != nil {
			return fmt.Errorf("tool %s: %w", decl.Name, err)
		}
	}
	return nil
}

// runTurn executes the full sync pipeline.
func (r *Runner) runTurn(ctx context.Context, agentName, input string, o *TurnOptions) *TurnResult {
	state, err := r.prepareTurn(ctx, agentName, input, o)
	if err != nil {
		sessionID := o.SessionID
		if state != nil && state.sess != nil {
			sessionID = state.sess.ID
			r.persistFailure(ctx, state, err)
		}
		return failure(sessionID, input, err)
	}

	output, items, err := r.invokeWithHandoffs(ctx, state, nil)
	if err != nil {
		r.persistAssistant(ctx, state, output, true)
		result := failure(state.sess.ID, state.input, err)
		result.Output = output
		result.Items = items
		return result
	}
	r.persistAssistant(ctx, state, output, false)
	r.consumeQuota(state)
	return &TurnResult{
		SessionID: state.sess.ID,
		Input:     state.input,
		Output:    output,
		Success:   true,
		Items:     items,
	}
}

// persistAssistant appends the assistant output and saves the session.
// Partial output from a cancelled or timed-out turn persists with the
// truncated flag.
func (r *Runner) persistAssistant(ctx context.Context, state *turnState, output string, truncated bool) {
	if output != "" || !truncated {
		state.c.AppendRaw(agent.Message{
			Role:      model.RoleAssistant,
			Content:   output,
			Truncated: truncated,
		})
	}
	state.sess.Context = state.c
	state.sess.Metadata.TurnCount++
	state.sess.Metadata.MessageCount = len(state.c.MessagesSnapshot())
	r.saveSession(ctx, state.sess)
}

// persistFailure records a turn rejected after its session was resolved:
// the user message is already in the context, a system note explains why
// no assistant reply followed.
func (r *Runner) persistFailure(ctx context.Context, state *turnState, err error) {
	state.c.AddMessage(model.RoleSystem, "Error: "+err.Error())
	state.sess.Context = state.c
	state.sess.Metadata.MessageCount = len(state.c.MessagesSnapshot())
	r.saveSession(ctx, state.sess)
}

// saveSession persists a session, surviving the turn deadline being
// already spent.
func (r *Runner) saveSession(ctx context.Context, sess *session.Session) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.sessions.SaveSession(pctx, sess); err != nil {
		log.Errorf("persist session %s: %v", sess.ID, err)
	}
}

// consumeQuota charges the caller for the work a turn actually did.
// Reservation happened at the gate; consumption is unconditional.
func (r *Runner) consumeQuota(state *turnState) {
	if state.modelCalls > 0 {
		r.gate.UseQuota(state.auth.UserID, auth.QuotaModelCalls, int64(state.modelCalls))
	}
	if state.tokensUsed > 0 {
		r.gate.UseQuota(state.auth.UserID, auth.QuotaModelTokens, int64(state.tokensUsed))
	}
}

// invokeWithHandoffs runs the model, executes callable tools, and
// follows handoff chains up to the engine's depth bound. It returns the
// final assistant output; partial output accompanies a non-nil error.
// em is nil on the sync path.
func (r *Runner) invokeWithHandoffs(ctx context.Context, state *turnState, em *streamEmitter) (string, []TurnItem, error) {
	var items []TurnItem
	current := state.ag
	messages := buildMessages(current, state.c)

	toolRounds := 0
	for depth := 0; ; {
		content, toolCalls, err := r.invokeModel(ctx, state, current, messages, em)
		if err != nil {
			return content, items, err
		}

		matched, reason, rest := r.matchHandoff(current, toolCalls)
		if matched == nil && len(rest) > 0 && toolRounds < defaultToolRounds {
			toolRounds++
			messages = r.executeTools(ctx, current, messages, content, rest, em)
			continue
		}
		if matched == nil {
			if depth > 0 {
				items = append(items, HandoffResultItem(current.Name, content))
			}
			return content, items, nil
		}

		if depth+1 > r.engine.MaxDepth() {
			return content, items, fmt.Errorf("%w: depth %d", ErrHandoffLoop, depth+1)
		}
		depth++
		telemetry.CountHandoff(ctx, matched.TargetAgent)
		if err := em.Handoff(current.Name, matched.TargetAgent, reason); err != nil {
			return content, items, err
		}
		if content != "" {
			items = append(items, HandoffResultItem(current.Name, content))
		}
		if matched.OnInvoke != nil {
			if err := matched.OnInvoke(ctx, reason); err != nil {
				log.Warnf("handoff hook for %s failed: %v", matched.TargetAgent, err)
			}
		}

		expert, err := r.templates.BuildAgent(ctx, matched.TargetAgent)
		if err != nil {
			return content, items, err
		}
		expert = r.engine.Normalize(expert)

		pre := preHandoffItems(content, toolCalls)
		data := handoff.BuildInputData(state.c.MessagesSnapshot(), pre)
		messages = handoff.DelegateMessages(matched, data, reason)
		current = expert
	}
}

// matchHandoff splits tool calls into a matched handoff (first wins) and
// the remaining ordinary calls.
func (r *Runner) matchHandoff(ag *agent.Agent, toolCalls []model.ToolCall) (*handoff.Handoff, string, []model.ToolCall) {
	var rest []model.ToolCall
	for _, tc := range toolCalls {
		if h, ok := r.engine.Match(ag, tc.Function.Name); ok {
			args := handoff.ParseArguments(tc.Function.Arguments)
			return h, args.Reason, nil
		}
		rest = append(rest, tc)
	}
	return nil, "", rest
}

// preHandoffItems reconstructs what the delegating agent produced this
// turn before the handoff fired.
func preHandoffItems(content string, toolCalls []model.ToolCall) []agent.Message {
	if content == "" && len(toolCalls) == 0 {
		return nil
	}
	return []agent.Message{{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}}
}

// executeTools runs the agent's callable tools for a round of tool calls
// and returns the extended message list for the follow-up model call.
func (r *Runner) executeTools(ctx context.Context, ag *agent.Agent, messages []model.Message, content string, toolCalls []model.ToolCall, em *streamEmitter) []model.Message {
	byName := ag.ToolMap()
	assistant := model.Message{
		Role:      model.RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}
	messages = append(messages, assistant)
	for _, tc := range toolCalls {
		name := tc.Function.Name
		_ = em.ToolCall(ag.Name, name, tc.Function.Arguments)
		result := r.callTool(ctx, byName[name], name, tc.Function.Arguments)
		_ = em.ToolResult(ag.Name, name, result)
		messages = append(messages, model.NewToolMessage(tc.ID, name, result))
	}
	return messages
}

func (r *Runner) callTool(ctx context.Context, t tool.Tool, name string, args []byte) string {
	callable, ok := t.(tool.CallableTool)
	if t == nil || !ok {
		log.Warnf("model called unknown tool %s", name)
		return fmt.Sprintf("error: tool %s not available", name)
	}
	out, err := callable.Call(ctx, args)
	if err != nil {
		log.Warnf("tool %s failed: %v", name, err)
		return fmt.Sprintf("error: %v", err)
	}
	return fmt.Sprintf("%v", out)
}

// buildMessages assembles the model input: synthesized system prompt
// first, then the context's non-system history in order.
func buildMessages(ag *agent.Agent, c *agent.Context) []model.Message {
	history := c.ModelMessages()
	out := make([]model.Message, 0, len(history)+1)
	out = append(out, model.NewSystemMessage(ag.Instructions))
	return append(out, history...)
}

// requestTools merges the agent's tools and its normalized handoffs into
// the declaration map the model sees.
func requestTools(ag *agent.Agent) map[string]tool.Tool {
	tools := ag.ToolMap()
	hs := handoff.Handoffs(ag)
	if len(hs) == 0 {
		return tools
	}
	if tools == nil {
		tools = make(map[string]tool.Tool, len(hs))
	}
	for _, h := range hs {
		tools[h.ToolName] = h
	}
	return tools
}

// invokeModel performs one model call. With a non-nil emitter it
// streams deltas as they arrive; either way it returns the completed
// assistant content and tool calls.
func (r *Runner) invokeModel(ctx context.Context, state *turnState, ag *agent.Agent, messages []model.Message, em *streamEmitter) (string, []model.ToolCall, error) {
	if ag.Model == nil {
		return "", nil, fmt.Errorf("agent %s has no model bound", ag.Name)
	}
	req := &model.Request{
		Messages:         messages,
		GenerationConfig: ag.GenerationConfig,
		Tools:            requestTools(ag),
	}
	req.Stream = em != nil

	ch, err := ag.Model.GenerateContent(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("model call: %w", err)
	}

	var accumulated string
	var final *model.Response
	timer := time.NewTimer(r.eventTimeout)
	defer timer.Stop()
	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.eventTimeout)
		select {
		case rsp, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return accumulated, nil, err
				}
				if final == nil {
					return accumulated, nil, errors.New("model stream ended without a final response")
				}
				return finishModelCall(ctx, state, ag, final, accumulated)
			}
			if rsp.Error != nil {
				return accumulated, nil, fmt.Errorf("model error: %s", rsp.Error.Message)
			}
			if rsp.IsPartial {
				if len(rsp.Choices) > 0 {
					delta := rsp.Choices[0].Delta.Content
					if delta != "" {
						accumulated += delta
						if err := em.Content(ag.Name, delta); err != nil {
							return accumulated, nil, err
						}
					}
				}
				continue
			}
			if rsp.Done {
				final = rsp
			}
		case <-timer.C:
			return accumulated, nil, fmt.Errorf("model event exceeded %s: %w", r.eventTimeout, context.DeadlineExceeded)
		case <-ctx.Done():
			return accumulated, nil, ctx.Err()
		}
	}
}

// finishModelCall extracts the completed message, accounts token usage
// and returns the call outcome.
func finishModelCall(ctx context.Context, state *turnState, ag *agent.Agent, final *model.Response, accumulated string) (string, []model.ToolCall, error) {
	var content string
	var toolCalls []model.ToolCall
	if len(final.Choices) > 0 {
		content = final.Choices[0].Message.Content
		toolCalls = final.Choices[0].Message.ToolCalls
	}
	if content == "" {
		content = accumulated
	}
	state.modelCalls++
	if final.Usage != nil {
		state.tokensUsed += final.Usage.TotalTokens
		state.sess.Metadata.TokenCount += final.Usage.TotalTokens
		telemetry.CountTokens(ctx, ag.ModelRef, int64(final.Usage.TotalTokens))
	}
	return content, toolCalls, nil
}
