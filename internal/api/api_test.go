package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/khuboolhai/chat-service/internal/auth"
	"github.com/khuboolhai/chat-service/internal/match"
	"github.com/khuboolhai/chat-service/internal/presence"
	"github.com/khuboolhai/chat-service/internal/store"
)

// memStore is an in-memory Store with the Postgres store's contract.
type memStore struct {
	mu       sync.Mutex
	convs    map[string]*store.Conversation
	messages map[string][]store.Message // by conversation, ascending
	profiles map[string]*store.Profile  // by profile ID
	blocks   map[string]bool            // "blocker|profileID"
	reports  []store.Report
}

func newMemStore() *memStore {
	return &memStore{
		convs:    make(map[string]*store.Conversation),
		messages: make(map[string][]store.Message),
		profiles: make(map[string]*store.Profile),
		blocks:   make(map[string]bool),
	}
}

// IDs are UUIDs, like the Postgres store's rows.
func (m *memStore) id() string {
	return uuid.New().String()
}

func (m *memStore) addProfile(p store.Profile) *store.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.id()
	}
	m.profiles[p.ID] = &p
	return &p
}

func (m *memStore) GetOrCreateConversation(_ context.Context, userA, userB string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	for _, conv := range m.convs {
		if conv.UserLo == lo && conv.UserHi == hi {
			return conv, nil
		}
	}
	conv := &store.Conversation{ID: m.id(), UserLo: lo, UserHi: hi, CreatedAt: time.Now()}
	m.convs[conv.ID] = conv
	return conv, nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (m *memStore) ListConversations(_ context.Context, userID string) ([]store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Conversation
	for _, conv := range m.convs {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (m *memStore) AppendMessage(_ context.Context, convID, senderID, text string) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, store.ErrEmptyText
	}
	conv, ok := m.convs[convID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !conv.HasParticipant(senderID) {
		return nil, store.ErrNotParticipant
	}
	msg := store.Message{
		ID:             m.id(),
		ConversationID: convID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	m.messages[convID] = append(m.messages[convID], msg)
	conv.LastMessage = store.TruncateRunes(text, store.PreviewRunes)
	at := msg.CreatedAt
	conv.LastMessageAt = &at
	return &msg, nil
}

func (m *memStore) ListMessages(_ context.Context, convID, beforeID string, limit int) ([]store.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.messages[convID]
	end := len(all)
	if beforeID != "" {
		// A cursor that matches no message yields an empty page, as the
		// SQL keyset subselect does.
		end = 0
		for i, msg := range all {
			if msg.ID == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	hasMore := start > 0
	if start < 0 {
		start = 0
	}
	return append([]store.Message(nil), all[start:end]...), hasMore, nil
}

func (m *memStore) MarkRead(_ context.Context, convID, readerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	msgs := m.messages[convID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].Read {
			msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

func (m *memStore) UnreadCount(_ context.Context, convID, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.messages[convID] {
		if msg.SenderID != userID && !msg.Read {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (*store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *memStore) GetProfileByUser(_ context.Context, userID string) (*store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListProfiles(_ context.Context, ids []string) ([]store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Profile
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) BlockProfile(_ context.Context, blockerID, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := blockerID + "|" + profileID
	if m.blocks[key] {
		return store.ErrAlreadyBlocked
	}
	m.blocks[key] = true
	return nil
}

func (m *memStore) UnblockProfile(_ context.Context, blockerID, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, blockerID+"|"+profileID)
	return nil
}

func (m *memStore) IsBlocked(_ context.Context, blockerID, profileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocks[blockerID+"|"+profileID], nil
}

func (m *memStore) ListBlockedProfiles(_ context.Context, blockerID string) ([]store.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Profile
	for key := range m.blocks {
		if !strings.HasPrefix(key, blockerID+"|") {
			continue
		}
		if p, ok := m.profiles[strings.TrimPrefix(key, blockerID+"|")]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) CreateReport(_ context.Context, reporterID, profileID, reason string) (*store.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, store.ErrEmptyReason
	}
	r := store.Report{
		ID:                m.id(),
		ReporterID:        reporterID,
		ReportedProfileID: profileID,
		Reason:            reason,
		Status:            store.ReportStatusPending,
		CreatedAt:         time.Now(),
	}
	m.reports = append(m.reports, r)
	return &r, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []*store.Message
}

func (p *recordingPublisher) PublishMessage(_ context.Context, _ string, m *store.Message) {
	p.mu.Lock()
	p.sent = append(p.sent, m)
	p.mu.Unlock()
}

type apiFixture struct {
	router *gin.Engine
	st     *memStore
	pub    *recordingPublisher
	track  *presence.Tracker
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	st := newMemStore()
	pub := &recordingPublisher{}
	track := presence.NewTracker()
	resolver := auth.Static{"tok-alice": "alice", "tok-bob": "bob"}
	srv := New(st, track, pub, resolver)
	return &apiFixture{router: srv.Router(), st: st, pub: pub, track: track}
}

func (fx *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	fx := setupAPI(t)
	w := fx.do(t, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	fx := setupAPI(t)
	for _, tc := range []struct{ name, token string }{
		{"missing token", ""},
		{"unknown token", "tok-mallory"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := fx.do(t, http.MethodGet, "/api/chat/conversations", tc.token, nil)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestCreateConversation(t *testing.T) {
	fx := setupAPI(t)
	bobProfile := fx.st.addProfile(store.Profile{UserID: "bob", FullName: "Bob"})
	aliceProfile := fx.st.addProfile(store.Profile{UserID: "alice", FullName: "Alice"})

	w := fx.do(t, http.MethodPost, "/api/chat/conversations", "tok-alice",
		map[string]string{"profileId": bobProfile.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d body=%s", w.Code, w.Body.String())
	}
	first := decode(t, w)["conversation"].(map[string]interface{})["_id"].(string)

	// Same pair from the other side resolves to the same conversation.
	w = fx.do(t, http.MethodPost, "/api/chat/conversations", "tok-bob",
		map[string]string{"profileId": aliceProfile.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("create reverse = %d", w.Code)
	}
	second := decode(t, w)["conversation"].(map[string]interface{})["_id"].(string)
	if first != second {
		t.Errorf("pair produced two conversations: %s vs %s", first, second)
	}

	w = fx.do(t, http.MethodPost, "/api/chat/conversations", "tok-alice",
		map[string]string{"profileId": aliceProfile.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self conversation = %d, want 400", w.Code)
	}

	w = fx.do(t, http.MethodPost, "/api/chat/conversations", "tok-alice",
		map[string]string{"profileId": "missing"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown profile = %d, want 404", w.Code)
	}
}

func TestListConversationsEnrichment(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{UserID: "bob", FullName: "Bob", PhotoURL: "http://x/bob.jpg"})
	conv, _ := fx.st.GetOrCreateConversation(context.Background(), "alice", "bob")
	if _, err := fx.st.AppendMessage(context.Background(), conv.ID, "bob", "hello there"); err != nil {
		t.Fatal(err)
	}
	fx.track.Connect("bob", "conn-1")

	w := fx.do(t, http.MethodGet, "/api/chat/conversations", "tok-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	convs := decode(t, w)["conversations"].([]interface{})
	if len(convs) != 1 {
		t.Fatalf("got %d conversations", len(convs))
	}
	view := convs[0].(map[string]interface{})
	if view["lastMessage"] != "hello there" {
		t.Errorf("lastMessage = %v", view["lastMessage"])
	}
	if view["unreadCount"].(float64) != 1 {
		t.Errorf("unreadCount = %v", view["unreadCount"])
	}
	if view["otherUserOnline"] != true {
		t.Error("otherUserOnline should be true while bob has a connection")
	}
	other := view["otherUser"].(map[string]interface{})
	if other["fullName"] != "Bob" {
		t.Errorf("otherUser = %v", other)
	}
}

func TestListMessagesPaginationAndReadMarking(t *testing.T) {
	fx := setupAPI(t)
	conv, _ := fx.st.GetOrCreateConversation(context.Background(), "alice", "bob")
	for i := 1; i <= 5; i++ {
		if _, err := fx.st.AppendMessage(context.Background(), conv.ID, "bob", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	w := fx.do(t, http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages?limit=2", "tok-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("page 1 = %d body=%s", w.Code, w.Body.String())
	}
	page := decode(t, w)
	msgs := page["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Fatalf("page 1 size = %d", len(msgs))
	}
	if page["hasMore"] != true {
		t.Error("page 1 should report hasMore")
	}
	if msgs[0].(map[string]interface{})["text"] != "msg-4" || msgs[1].(map[string]interface{})["text"] != "msg-5" {
		t.Errorf("page 1 = %v", msgs)
	}
	cursor := page["nextCursor"].(string)

	w = fx.do(t, http.MethodGet,
		"/api/chat/conversations/"+conv.ID+"/messages?limit=2&before="+cursor, "tok-alice", nil)
	page = decode(t, w)
	msgs = page["messages"].([]interface{})
	if msgs[0].(map[string]interface{})["text"] != "msg-2" || msgs[1].(map[string]interface{})["text"] != "msg-3" {
		t.Errorf("page 2 = %v", msgs)
	}

	// Fetching history marked bob's messages read.
	if n, _ := fx.st.UnreadCount(context.Background(), conv.ID, "alice"); n != 0 {
		t.Errorf("unread after fetch = %d", n)
	}
}

func TestListMessagesAuthorization(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{UserID: "mallory"})
	conv, _ := fx.st.GetOrCreateConversation(context.Background(), "alice", "carol")

	resolver := auth.Static{"tok-mallory": "mallory"}
	srv := New(fx.st, fx.track, fx.pub, resolver)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/api/chat/conversations/"+conv.ID+"/messages", nil)
	req.Header.Set("Authorization", "Bearer tok-mallory")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("outsider read = %d, want 403", w.Code)
	}

	wr := fx.do(t, http.MethodGet, "/api/chat/conversations/nope/messages", "tok-alice", nil)
	if wr.Code != http.StatusNotFound {
		t.Errorf("unknown conversation = %d, want 404", wr.Code)
	}
}

// A malformed cursor is a client error; it must never reach the store,
// where a failed UUID cast would surface as a 500.
func TestListMessagesRejectsMalformedCursor(t *testing.T) {
	fx := setupAPI(t)
	conv, _ := fx.st.GetOrCreateConversation(context.Background(), "alice", "bob")

	w := fx.do(t, http.MethodGet,
		"/api/chat/conversations/"+conv.ID+"/messages?before=not-a-uuid", "tok-alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed cursor = %d, want 400 body=%s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["error"] != "invalid cursor" {
		t.Errorf("error = %v", body["error"])
	}

	// A well-formed cursor that matches no message yields an empty page,
	// not an error.
	w = fx.do(t, http.MethodGet,
		"/api/chat/conversations/"+conv.ID+"/messages?before="+uuid.New().String(), "tok-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("unknown cursor = %d, want 200 body=%s", w.Code, w.Body.String())
	}
}

func TestSendMessageREST(t *testing.T) {
	fx := setupAPI(t)
	conv, _ := fx.st.GetOrCreateConversation(context.Background(), "alice", "bob")

	w := fx.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages",
		"tok-alice", map[string]string{"text": "over http"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send = %d body=%s", w.Code, w.Body.String())
	}
	if len(fx.pub.sent) != 1 || fx.pub.sent[0].Text != "over http" {
		t.Errorf("publisher calls = %+v", fx.pub.sent)
	}

	w = fx.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages",
		"tok-alice", map[string]string{"text": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank text = %d, want 400", w.Code)
	}

	w = fx.do(t, http.MethodPost, "/api/chat/conversations/"+conv.ID+"/messages",
		"tok-bob", map[string]string{"text": "fine"})
	if w.Code != http.StatusCreated {
		t.Errorf("other participant send = %d", w.Code)
	}
	if len(fx.pub.sent) != 2 {
		t.Errorf("rejected sends must not publish; calls = %d", len(fx.pub.sent))
	}
}

func TestBlockLifecycle(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{UserID: "alice"})
	bob := fx.st.addProfile(store.Profile{UserID: "bob", FullName: "Bob"})
	aliceProfile, _ := fx.st.GetProfileByUser(context.Background(), "alice")

	w := fx.do(t, http.MethodPost, "/api/block/"+bob.ID, "tok-alice", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("block = %d body=%s", w.Code, w.Body.String())
	}

	w = fx.do(t, http.MethodPost, "/api/block/"+bob.ID, "tok-alice", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate block = %d, want 409", w.Code)
	}

	w = fx.do(t, http.MethodGet, "/api/block/check/"+bob.ID, "tok-alice", nil)
	if decode(t, w)["blocked"] != true {
		t.Error("check should report blocked")
	}

	w = fx.do(t, http.MethodGet, "/api/block", "tok-alice", nil)
	profiles := decode(t, w)["profiles"].([]interface{})
	if len(profiles) != 1 || profiles[0].(map[string]interface{})["fullName"] != "Bob" {
		t.Errorf("blocked list = %v", profiles)
	}

	w = fx.do(t, http.MethodDelete, "/api/block/"+bob.ID, "tok-alice", nil)
	if w.Code != http.StatusOK {
		t.Errorf("unblock = %d", w.Code)
	}
	w = fx.do(t, http.MethodGet, "/api/block/check/"+bob.ID, "tok-alice", nil)
	if decode(t, w)["blocked"] != false {
		t.Error("check should report unblocked")
	}

	w = fx.do(t, http.MethodPost, "/api/block/"+aliceProfile.ID, "tok-alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("self block = %d, want 400", w.Code)
	}
	w = fx.do(t, http.MethodPost, "/api/block/missing", "tok-alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown profile block = %d, want 404", w.Code)
	}
}

func TestCreateReport(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{UserID: "alice"})
	bob := fx.st.addProfile(store.Profile{UserID: "bob"})
	aliceProfile, _ := fx.st.GetProfileByUser(context.Background(), "alice")

	w := fx.do(t, http.MethodPost, "/api/reports", "tok-alice",
		map[string]string{"profileId": bob.ID, "reason": "fake profile"})
	if w.Code != http.StatusCreated {
		t.Fatalf("report = %d body=%s", w.Code, w.Body.String())
	}
	if len(fx.st.reports) != 1 || fx.st.reports[0].Reason != "fake profile" {
		t.Errorf("stored reports = %+v", fx.st.reports)
	}

	w = fx.do(t, http.MethodPost, "/api/reports", "tok-alice",
		map[string]string{"profileId": bob.ID})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing reason = %d, want 400", w.Code)
	}

	w = fx.do(t, http.MethodPost, "/api/reports", "tok-alice",
		map[string]string{"profileId": aliceProfile.ID, "reason": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self report = %d, want 400", w.Code)
	}

	w = fx.do(t, http.MethodPost, "/api/reports", "tok-alice",
		map[string]string{"profileId": "missing", "reason": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown profile = %d, want 404", w.Code)
	}
}

func TestMatchScoreEndpoint(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{
		UserID: "alice",
		Gender: "female",
		Preferences: match.PreferenceProfile{
			Religion: []string{"Hindu"},
			State:    []string{"Kerala"},
		},
	})
	bob := fx.st.addProfile(store.Profile{
		UserID:   "bob",
		Gender:   "male",
		Religion: "Hindu",
		State:    "Kerala",
	})
	carol := fx.st.addProfile(store.Profile{UserID: "carol", Gender: "female"})

	w := fx.do(t, http.MethodGet, "/api/match/"+bob.ID, "tok-alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("match = %d body=%s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["matchScore"].(float64) != 100 {
		t.Errorf("matchScore = %v, want 100", resp["matchScore"])
	}
	if _, ok := resp["breakdown"]; ok {
		t.Error("breakdown returned without being requested")
	}

	w = fx.do(t, http.MethodGet, "/api/match/"+bob.ID+"?breakdown=true", "tok-alice", nil)
	resp = decode(t, w)
	if _, ok := resp["breakdown"].([]interface{}); !ok {
		t.Errorf("breakdown missing: %v", resp)
	}

	// Same-gender pair gates out to an explicit null.
	w = fx.do(t, http.MethodGet, "/api/match/"+carol.ID, "tok-alice", nil)
	resp = decode(t, w)
	if v, present := resp["matchScore"]; !present || v != nil {
		t.Errorf("gated matchScore = %v, want null", v)
	}

	w = fx.do(t, http.MethodGet, "/api/match/missing", "tok-alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown profile = %d, want 404", w.Code)
	}
}

func TestMatchBatchEndpoint(t *testing.T) {
	fx := setupAPI(t)
	fx.st.addProfile(store.Profile{
		UserID: "alice",
		Gender: "female",
		Preferences: match.PreferenceProfile{
			Religion: []string{"Hindu"},
		},
	})
	bob := fx.st.addProfile(store.Profile{UserID: "bob", Gender: "male", Religion: "Hindu"})
	carol := fx.st.addProfile(store.Profile{UserID: "carol", Gender: "female"})

	w := fx.do(t, http.MethodPost, "/api/match/batch", "tok-alice",
		map[string][]string{"profileIds": {bob.ID, carol.ID, "missing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("batch = %d body=%s", w.Code, w.Body.String())
	}
	scores := decode(t, w)["scores"].(map[string]interface{})
	if scores[bob.ID].(float64) != 100 {
		t.Errorf("bob score = %v", scores[bob.ID])
	}
	if v, present := scores[carol.ID]; !present || v != nil {
		t.Errorf("carol score = %v, want explicit null", v)
	}
	if _, present := scores["missing"]; present {
		t.Error("unknown profile must be absent from scores")
	}

	w = fx.do(t, http.MethodPost, "/api/match/batch", "tok-alice", map[string][]string{"profileIds": {}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch = %d, want 400", w.Code)
	}
}
