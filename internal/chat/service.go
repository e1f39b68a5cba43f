package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/suPer8Hu/ai-chat/internal/ai"
)

const (
	maxSearchResults      = 100
	maxIdempotencyKeyLen  = 128
	defaultPersistTimeout = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

type Options struct {
	SystemPrompt      string
	ContextWindowSize int
	CompletionTimeout time.Duration
	TitleTimeout      time.Duration
	IdempotencyTTL    time.Duration
	// bounds the turn insert and, separately, the retry enqueue
	PersistTimeout time.Duration

	// optional
	RetryQueue RetryQueue
	ReplyCache ReplyCache
}

type Service struct {
	store          Store
	assembler      *Assembler
	gateway        *Gateway
	retry          RetryQueue
	replies        ReplyCache
	idempotencyTTL time.Duration
	persistTimeout time.Duration
}

func NewService(store Store, provider ai.Provider, opts Options) *Service {
	ttl := opts.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	persistTimeout := opts.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = defaultPersistTimeout
	}
	return &Service{
		store:          store,
		assembler:      NewAssembler(store, opts.SystemPrompt, opts.ContextWindowSize),
		gateway:        NewGateway(provider, opts.CompletionTimeout, opts.TitleTimeout),
		retry:          opts.RetryQueue,
		replies:        opts.ReplyCache,
		idempotencyTTL: ttl,
		persistTimeout: persistTimeout,
	}
}

type ChatRequest struct {
	Message          string
	ConversationID   string
	ConversationName string
	Subject          string
	IdempotencyKey   string
}

type ChatReply struct {
	Reply            string  `json:"reply"`
	ConversationID   string  `json:"conversation_id"`
	Subject          *string `json:"subject"`
	ConversationName string  `json:"conversation_name,omitempty"`
}

// Chat runs one request through the conversation: it resolves the id and
// subject, rebuilds the context, asks the provider and appends the new turn.
// A failed completion writes nothing; a failed write is logged and retried
// in the background but does not fail the call.
func (s *Service) Chat(ctx context.Context, p Principal, req ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, newError(ErrorInvalidRequest, "empty_message", nil)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, newError(ErrorInvalidRequest, "idempotency_key_too_long", nil)
	}

	cacheKey, fp := "", ""
	if s.replies != nil && req.IdempotencyKey != "" {
		cacheKey = idempotencyKey(p, req.IdempotencyKey)
		fp = requestFingerprint(message, req)
		cached, ok, err := s.replies.GetReply(ctx, cacheKey)
		if err != nil {
			log.Warn("reply cache lookup failed", "key", cacheKey, "err", err)
		} else if ok {
			if cached.Fingerprint != fp {
				return nil, newError(ErrorInvalidRequest, "idempotency_key_reused", nil)
			}
			reply := cached.Reply
			return &reply, nil
		}
	}

	convID := strings.TrimSpace(req.ConversationID)
	isNew := convID == ""
	if isNew {
		convID = NewConversationID()
	}

	subject := strings.TrimSpace(req.Subject)
	name := strings.TrimSpace(req.ConversationName)
	if isNew && subject == "" {
		subject = s.deriveSubject(ctx, convID, message)
	}

	assembleID := convID
	if isNew {
		assembleID = ""
	}
	msgs, history, err := s.assembler.Assemble(ctx, assembleID, p, message)
	if err != nil {
		log.Error("assemble context failed", "conversation_id", convID, "op", "chat", "err", err)
		return nil, newError(ErrorStore, "assemble_failed", err)
	}
	if !isNew {
		if len(history) == 0 {
			return nil, newError(ErrorNotFound, "conversation_not_found", nil)
		}
		if subject == "" {
			subject = storedSubject(history)
		}
		if name == "" {
			name = storedName(history)
		}
	}

	reply, err := s.gateway.Complete(ctx, msgs)
	if err != nil {
		log.Error("completion failed", "conversation_id", convID, "op", "chat", "err", err)
		return nil, err
	}

	s.persist(ctx, &Turn{
		ConversationID:   convID,
		OwnerID:          p.OwnerTag(),
		UserText:         message,
		BotText:          reply,
		ConversationName: name,
		Subject:          subject,
	})

	out := &ChatReply{
		Reply:            reply,
		ConversationID:   convID,
		ConversationName: name,
	}
	if subject != "" {
		out.Subject = &subject
	}

	if cacheKey != "" {
		entry := &CachedReply{Fingerprint: fp, Reply: *out}
		if err := s.replies.SaveReply(ctx, cacheKey, entry, s.idempotencyTTL); err != nil {
			log.Warn("reply cache store failed", "key", cacheKey, "err", err)
		}
	}
	return out, nil
}

func (s *Service) deriveSubject(ctx context.Context, convID, message string) string {
	title, err := s.gateway.DeriveTitle(ctx, message)
	if err != nil {
		log.Warn("title generation failed, using fallback", "conversation_id", convID, "err", err)
		return FallbackSubject
	}
	return title
}

// storedSubject is the subject of the earliest turn that has one.
func storedSubject(history []Turn) string {
	for _, t := range history {
		if t.Subject != "" {
			return t.Subject
		}
	}
	return ""
}

// storedName is the most recent name, so a rename sticks to later turns.
func storedName(history []Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ConversationName != "" {
			return history[i].ConversationName
		}
	}
	return ""
}

func (s *Service) persist(ctx context.Context, t *Turn) {
	// the reply is already produced; a client disconnect must not drop the write
	detached := context.WithoutCancel(ctx)
	pctx, cancel := context.WithTimeout(detached, s.persistTimeout)
	defer cancel()

	turnID, err := NewTurnID()
	if err != nil {
		log.Error("mint turn id failed", "conversation_id", t.ConversationID, "err", err)
		return
	}
	t.TurnID = turnID
	t.CreatedAt = time.Now()

	err = s.store.InsertTurn(pctx, t)
	if err == nil || errors.Is(err, ErrDuplicateTurn) {
		return
	}
	log.Error("persist turn failed", "conversation_id", t.ConversationID, "turn_id", t.TurnID, "op", "chat", "err", err)

	if s.retry == nil {
		return
	}
	// the insert may have failed by using up pctx
	qctx, qcancel := context.WithTimeout(detached, s.persistTimeout)
	defer qcancel()
	if qerr := s.retry.EnqueueTurn(qctx, t); qerr != nil {
		log.Error("enqueue turn retry failed", "conversation_id", t.ConversationID, "turn_id", t.TurnID, "err", qerr)
	}
}

// RetryPersist inserts a turn handed back by the retry queue. Turns that
// already made it into the store are treated as done.
func (s *Service) RetryPersist(ctx context.Context, t *Turn) error {
	if t == nil || t.TurnID == "" || t.ConversationID == "" {
		return newError(ErrorInvalidRequest, "malformed_turn", nil)
	}
	t.ID = 0
	if err := s.store.InsertTurn(ctx, t); err != nil && !errors.Is(err, ErrDuplicateTurn) {
		return newError(ErrorStore, "retry_insert_failed", err)
	}
	return nil
}

// ListConversations lists the caller's conversations, oldest first.
func (s *Service) ListConversations(ctx context.Context, p Principal) ([]ConversationSummary, error) {
	scope, err := p.WriteScope()
	if err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, scope.OwnerID)
	if err != nil {
		log.Error("list conversations failed", "user_id", scope.OwnerID, "op", "list", "err", err)
		return nil, newError(ErrorStore, "list_failed", err)
	}
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		c.DisplayName = DisplayName(c.ConversationID, c.ConversationName, c.Subject)
		out = append(out, c)
	}
	return out, nil
}

// Search matches term against the caller's turns, or every turn for an
// anonymous caller.
func (s *Service) Search(ctx context.Context, p Principal, term string) ([]Turn, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, newError(ErrorInvalidRequest, "empty_search_term", nil)
	}
	turns, err := s.store.SearchTurns(ctx, term, p.ReadScope(), maxSearchResults)
	if err != nil {
		log.Error("search failed", "op", "search", "err", err)
		return nil, newError(ErrorStore, "search_failed", err)
	}
	if turns == nil {
		turns = []Turn{}
	}
	return turns, nil
}

// LoadConversation returns the caller's turns of one conversation in order.
func (s *Service) LoadConversation(ctx context.Context, p Principal, conversationID string) ([]Turn, error) {
	scope, err := p.WriteScope()
	if err != nil {
		return nil, err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorInvalidRequest, "conversation_id_required", nil)
	}
	turns, err := s.store.ListTurns(ctx, conversationID, scope)
	if err != nil {
		log.Error("load conversation failed", "conversation_id", conversationID, "op", "load", "err", err)
		return nil, newError(ErrorStore, "load_failed", err)
	}
	if len(turns) == 0 {
		return nil, newError(ErrorNotFound, "conversation_not_found", nil)
	}
	return turns, nil
}

func (s *Service) RenameConversation(ctx context.Context, p Principal, conversationID, newName string) error {
	scope, err := p.WriteScope()
	if err != nil {
		return err
	}
	conversationID = strings.TrimSpace(conversationID)
	newName = strings.TrimSpace(newName)
	if conversationID == "" || newName == "" {
		return newError(ErrorInvalidRequest, "conversation_id_and_name_required", nil)
	}
	n, err := s.store.RenameConversation(ctx, conversationID, scope.OwnerID, newName)
	if err != nil {
		log.Error("rename conversation failed", "conversation_id", conversationID, "op", "rename", "err", err)
		return newError(ErrorStore, "rename_failed", err)
	}
	if n == 0 {
		return newError(ErrorNotFound, "conversation_not_found", nil)
	}
	return nil
}

func (s *Service) DeleteConversation(ctx context.Context, p Principal, conversationID string) error {
	scope, err := p.WriteScope()
	if err != nil {
		return err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return newError(ErrorInvalidRequest, "conversation_id_required", nil)
	}
	n, err := s.store.DeleteConversation(ctx, conversationID, scope.OwnerID)
	if err != nil {
		log.Error("delete conversation failed", "conversation_id", conversationID, "op", "delete", "err", err)
		return newError(ErrorStore, "delete_failed", err)
	}
	if n == 0 {
		return newError(ErrorNotFound, "conversation_not_found", nil)
	}
	return nil
}
