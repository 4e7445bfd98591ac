package conversation

import (
	"context"
	"sort"
	"testing"
	"time"

	"chat-service/internal/errs"
	"chat-service/internal/user"
)

type fakeRepo struct {
	nextID int64
	convs  map[int64]*Conversation
	direct map[string]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{convs: map[int64]*Conversation{}, direct: map[string]int64{}}
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*Conversation, error) {
	c, ok := f.convs[id]
	if !ok {
		return nil, errs.NotFoundf("conversation %d not found", id)
	}
	return c, nil
}

// FindDirect returns a snapshot, as a store query would; later member
// upserts are not visible through it.
func (f *fakeRepo) FindDirect(_ context.Context, key string) (*Conversation, error) {
	id, ok := f.direct[key]
	if !ok {
		return nil, errs.NotFoundf("direct conversation not found")
	}
	c := *f.convs[id]
	c.Members = append([]Member(nil), c.Members...)
	return &c, nil
}

func (f *fakeRepo) CreateDirect(_ context.Context, a, b string) (*Conversation, error) {
	key := DirectKeyFor(a, b)
	if id, ok := f.direct[key]; ok {
		return f.convs[id], nil
	}
	f.nextID++
	c := &Conversation{
		ID: f.nextID, IsGroup: false, DirectKey: &key,
		Members: []Member{
			{ConversationID: f.nextID, UserID: a},
			{ConversationID: f.nextID, UserID: b},
		},
	}
	f.convs[c.ID] = c
	f.direct[key] = c.ID
	return c, nil
}

func (f *fakeRepo) CreateGroup(_ context.Context, c *Conversation, memberIDs []string) error {
	f.nextID++
	c.ID = f.nextID
	for _, id := range memberIDs {
		c.Members = append(c.Members, Member{ConversationID: c.ID, UserID: id})
	}
	f.convs[c.ID] = c
	return nil
}

func (f *fakeRepo) UpdateName(_ context.Context, id int64, name string) error {
	f.convs[id].Name = name
	return nil
}

func (f *fakeRepo) AddMember(_ context.Context, convID int64, userID string) error {
	c := f.convs[convID]
	if !c.HasMember(userID) {
		c.Members = append(c.Members, Member{ConversationID: convID, UserID: userID})
	}
	return nil
}

func (f *fakeRepo) EnsureMembers(_ context.Context, convID int64, userIDs ...string) error {
	for _, id := range userIDs {
		if err := f.AddMember(nil, convID, id); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) RemoveMember(_ context.Context, convID int64, userID string) error {
	c := f.convs[convID]
	kept := c.Members[:0]
	for _, m := range c.Members {
		if m.UserID != userID {
			kept = append(kept, m)
		}
	}
	c.Members = kept
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, convID int64) error {
	delete(f.convs, convID)
	return nil
}

// ListByUser mirrors the store's ordering contract: newest activity first.
func (f *fakeRepo) ListByUser(_ context.Context, userID string) ([]Conversation, error) {
	var out []Conversation
	for _, c := range f.convs {
		if c.HasMember(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRepo) StatesFor(_ context.Context, userID string) (map[int64]Member, error) {
	out := map[int64]Member{}
	for _, c := range f.convs {
		for _, m := range c.Members {
			if m.UserID == userID {
				out[c.ID] = m
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) ResetUnread(_ context.Context, convID int64, userID string, at time.Time) error {
	c, ok := f.convs[convID]
	if !ok {
		return nil
	}
	for i, m := range c.Members {
		if m.UserID == userID {
			c.Members[i].UnreadCount = 0
			c.Members[i].LastSeenAt = &at
			return nil
		}
	}
	c.Members = append(c.Members, Member{ConversationID: convID, UserID: userID, LastSeenAt: &at})
	return nil
}

type fakeUsers struct{ known map[string]user.User }

func (f *fakeUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := f.known[id]
	if !ok {
		return nil, errs.NotFoundf("user %s not found", id)
	}
	return &u, nil
}

func (f *fakeUsers) GetByIDs(_ context.Context, ids []string) (map[string]user.User, error) {
	out := map[string]user.User{}
	for _, id := range ids {
		if u, ok := f.known[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (f *fakeUsers) Upsert(_ context.Context, u *user.User) error { f.known[u.ID] = *u; return nil }
func (f *fakeUsers) SetOnline(context.Context, string) error      { return nil }
func (f *fakeUsers) SetOffline(context.Context, string, time.Time) error {
	return nil
}

type fanCall struct {
	kind string
	id   int64
	view *View
}

type fakeFanout struct{ calls []fanCall }

func (f *fakeFanout) GroupRenamed(v *View) { f.calls = append(f.calls, fanCall{"renamed", v.ID, v}) }
func (f *fakeFanout) GroupUpdated(v *View) { f.calls = append(f.calls, fanCall{"updated", v.ID, v}) }
func (f *fakeFanout) GroupLeft(id int64, v *View) {
	f.calls = append(f.calls, fanCall{"left", id, v})
}

type fakeLatest struct{ previews map[int64]LatestMessage }

func (f *fakeLatest) LatestByIDs(_ context.Context, ids []int64) (map[int64]LatestMessage, error) {
	out := map[int64]LatestMessage{}
	for _, id := range ids {
		if p, ok := f.previews[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func newTestService(t *testing.T, userIDs ...string) (Service, *fakeRepo, *fakeFanout) {
	t.Helper()
	users := &fakeUsers{known: map[string]user.User{}}
	for _, id := range userIDs {
		users.known[id] = user.User{ID: id, Name: "name-" + id}
	}
	repo := newFakeRepo()
	fan := &fakeFanout{}
	svc := NewService(repo, users, &fakeLatest{previews: map[int64]LatestMessage{}}, fan)
	return svc, repo, fan
}

func mustKind(t *testing.T, err error, k errs.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", k)
	}
	if !errs.Is(err, k) {
		t.Fatalf("expected %v error, got %v", k, err)
	}
}

func TestGetOrCreateDirectIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	first, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	// Same pair, both orderings, must land on the same thread.
	second, err := svc.GetOrCreateDirect(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("direct thread duplicated: %d vs %d", first.ID, second.ID)
	}
	if len(repo.convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(repo.convs))
	}
	if len(first.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(first.Members))
	}
}

func TestGetOrCreateDirectRepairsMissingMemberRow(t *testing.T) {
	svc, repo, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()

	v, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	// Simulate a lost member row.
	if err := repo.RemoveMember(ctx, v.ID, "bob"); err != nil {
		t.Fatalf("drop member: %v", err)
	}

	repaired, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("reopen direct: %v", err)
	}
	if repaired.ID != v.ID {
		t.Fatalf("repair created a new thread: %d vs %d", repaired.ID, v.ID)
	}
	// The response must already reflect the repaired roster.
	if len(repaired.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(repaired.Members))
	}
	if !repo.convs[v.ID].HasMember("bob") {
		t.Fatal("member row not restored in the store")
	}
}

func TestGetOrCreateDirectRejectsSelf(t *testing.T) {
	svc, _, _ := newTestService(t, "alice")
	_, err := svc.GetOrCreateDirect(context.Background(), "alice", "alice")
	mustKind(t, err, errs.Validation)
}

func TestGetOrCreateDirectUnknownPeer(t *testing.T) {
	svc, _, _ := newTestService(t, "alice")
	_, err := svc.GetOrCreateDirect(context.Background(), "alice", "ghost")
	mustKind(t, err, errs.NotFound)
}

func TestCreateGroupValidation(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()

	if _, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "  "); !errs.Is(err, errs.Validation) {
		t.Fatalf("blank name accepted: %v", err)
	}
	if _, err := svc.CreateGroup(ctx, "alice", []string{"bob"}, "duo"); !errs.Is(err, errs.Validation) {
		t.Fatalf("two-member group accepted: %v", err)
	}
	// Duplicated ids and the creator listed explicitly still count once.
	if _, err := svc.CreateGroup(ctx, "alice", []string{"bob", "bob", "alice"}, "dup"); !errs.Is(err, errs.Validation) {
		t.Fatalf("deduped two-member group accepted: %v", err)
	}
}

func TestCreateGroupSetsCreatorAsAdmin(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob", "carol")
	v, err := svc.CreateGroup(context.Background(), "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if v.AdminID != "alice" {
		t.Fatalf("admin = %q, want alice", v.AdminID)
	}
	if len(v.Members) != 3 {
		t.Fatalf("members = %d, want 3", len(v.Members))
	}
}

func TestRenameRequiresAdmin(t *testing.T) {
	svc, _, fan := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	_, err = svc.Rename(ctx, v.ID, "bob", "hijacked")
	mustKind(t, err, errs.Permission)

	renamed, err := svc.Rename(ctx, v.ID, "alice", "renamed trio")
	if err != nil {
		t.Fatalf("admin rename: %v", err)
	}
	if renamed.Name != "renamed trio" {
		t.Fatalf("name = %q", renamed.Name)
	}
	if len(fan.calls) == 0 || fan.calls[len(fan.calls)-1].kind != "renamed" {
		t.Fatalf("rename not fanned out: %+v", fan.calls)
	}
}

func TestRenameDirectRejected(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()
	v, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	_, err = svc.Rename(ctx, v.ID, "alice", "nope")
	mustKind(t, err, errs.Validation)
}

func TestAddMember(t *testing.T) {
	svc, _, fan := newTestService(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	_, err = svc.AddMember(ctx, v.ID, "bob", "dave")
	mustKind(t, err, errs.Permission)

	_, err = svc.AddMember(ctx, v.ID, "alice", "bob")
	mustKind(t, err, errs.Conflict)

	_, err = svc.AddMember(ctx, v.ID, "alice", "ghost")
	mustKind(t, err, errs.NotFound)

	grown, err := svc.AddMember(ctx, v.ID, "alice", "dave")
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if len(grown.Members) != 4 {
		t.Fatalf("members = %d, want 4", len(grown.Members))
	}
	if fan.calls[len(fan.calls)-1].kind != "updated" {
		t.Fatalf("membership change not fanned out: %+v", fan.calls)
	}
}

func TestRemoveMember(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	_, err = svc.RemoveMember(ctx, v.ID, "bob", "carol")
	mustKind(t, err, errs.Permission)

	// The admin cannot remove themselves through the member path.
	_, err = svc.RemoveMember(ctx, v.ID, "alice", "alice")
	mustKind(t, err, errs.Permission)

	_, err = svc.RemoveMember(ctx, v.ID, "alice", "ghost")
	mustKind(t, err, errs.NotFound)

	shrunk, err := svc.RemoveMember(ctx, v.ID, "alice", "carol")
	if err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if len(shrunk.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(shrunk.Members))
	}
}

func TestLeaveAdminMustTransferFirst(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	_, err = svc.Leave(ctx, v.ID, "alice")
	mustKind(t, err, errs.Permission)
}

func TestLeaveRemovesMember(t *testing.T) {
	svc, _, fan := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}

	res, err := svc.Leave(ctx, v.ID, "bob")
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if res.Deleted {
		t.Fatal("leave of a non-last member deleted the conversation")
	}
	if len(res.Conversation.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(res.Conversation.Members))
	}
	last := fan.calls[len(fan.calls)-1]
	if last.kind != "left" || last.view == nil {
		t.Fatalf("leave not fanned out with updated view: %+v", last)
	}
}

func TestLeaveLastMemberDestroysConversation(t *testing.T) {
	svc, repo, fan := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := svc.Leave(ctx, v.ID, "bob"); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	if _, err := svc.Leave(ctx, v.ID, "carol"); err != nil {
		t.Fatalf("carol leave: %v", err)
	}

	res, err := svc.Leave(ctx, v.ID, "alice")
	if err != nil {
		t.Fatalf("last leave: %v", err)
	}
	if !res.Deleted {
		t.Fatal("last member leave did not delete the conversation")
	}
	if _, ok := repo.convs[v.ID]; ok {
		t.Fatal("conversation row survived deletion")
	}
	last := fan.calls[len(fan.calls)-1]
	if last.kind != "left" || last.view != nil {
		t.Fatalf("deletion fan-out should carry a nil view: %+v", last)
	}
}

func TestLeaveNonMember(t *testing.T) {
	svc, _, _ := newTestService(t, "alice", "bob", "carol", "dave")
	ctx := context.Background()
	v, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	_, err = svc.Leave(ctx, v.ID, "dave")
	mustKind(t, err, errs.NotFound)
}

func TestMarkReadResetsUnread(t *testing.T) {
	svc, repo, _ := newTestService(t, "alice", "bob")
	ctx := context.Background()
	v, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	c := repo.convs[v.ID]
	for i := range c.Members {
		if c.Members[i].UserID == "bob" {
			c.Members[i].UnreadCount = 7
		}
	}

	if err := svc.MarkRead(ctx, v.ID, "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Repeating the call must be a no-op, not an error.
	if err := svc.MarkRead(ctx, v.ID, "bob"); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}

	states, err := repo.StatesFor(ctx, "bob")
	if err != nil {
		t.Fatalf("states: %v", err)
	}
	st := states[v.ID]
	if st.UnreadCount != 0 {
		t.Fatalf("unread = %d after mark read", st.UnreadCount)
	}
	if st.LastSeenAt == nil {
		t.Fatal("last seen not stamped")
	}
}

func TestListForUserCarriesUnreadAndPreview(t *testing.T) {
	users := &fakeUsers{known: map[string]user.User{
		"alice": {ID: "alice", Name: "Alice"},
		"bob":   {ID: "bob", Name: "Bob"},
	}}
	repo := newFakeRepo()
	latest := &fakeLatest{previews: map[int64]LatestMessage{
		42: {ID: 42, SenderID: "alice", Content: "hello"},
	}}
	svc := NewService(repo, users, latest, nil)
	ctx := context.Background()

	v, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	c := repo.convs[v.ID]
	lastID := int64(42)
	c.LastMessageID = &lastID
	for i := range c.Members {
		if c.Members[i].UserID == "bob" {
			c.Members[i].UnreadCount = 3
		}
	}

	listed, err := svc.ListForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("listed %d conversations, want 1", len(listed))
	}
	got := listed[0]
	if got.UnreadCount != 3 {
		t.Fatalf("unread = %d, want 3", got.UnreadCount)
	}
	if got.LastMessage == nil || got.LastMessage.Content != "hello" {
		t.Fatalf("last message preview missing: %+v", got.LastMessage)
	}
	if len(got.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(got.Members))
	}
}

func TestListForUserOrdersByRecentActivity(t *testing.T) {
	svc, repo, _ := newTestService(t, "alice", "bob", "carol")
	ctx := context.Background()

	old, err := svc.GetOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("open direct: %v", err)
	}
	fresh, err := svc.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	// The group saw activity last.
	repo.convs[old.ID].UpdatedAt = time.Now().Add(-time.Hour)
	repo.convs[fresh.ID].UpdatedAt = time.Now()

	listed, err := svc.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d conversations, want 2", len(listed))
	}
	if listed[0].ID != fresh.ID || listed[1].ID != old.ID {
		t.Fatalf("order = [%d %d], want newest activity first [%d %d]",
			listed[0].ID, listed[1].ID, fresh.ID, old.ID)
	}

	// A new message in the older thread moves it back to the top.
	repo.convs[old.ID].UpdatedAt = time.Now().Add(time.Minute)
	listed, err = svc.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("relist: %v", err)
	}
	if listed[0].ID != old.ID {
		t.Fatalf("thread with newest activity not first: got %d", listed[0].ID)
	}
}

func TestDirectKeyForIsOrderInsensitive(t *testing.T) {
	if DirectKeyFor("b", "a") != DirectKeyFor("a", "b") {
		t.Fatal("direct key depends on argument order")
	}
}
