package conversation

import (
	"context"
	"strings"
	"time"

	"chat-service/internal/errs"
	"chat-service/internal/user"
)

// Fanout receives durable mutation results for live delivery. Calls must
// never block; implementations deliver best-effort.
type Fanout interface {
	GroupRenamed(v *View)
	GroupUpdated(v *View)
	// GroupLeft carries the updated conversation, or nil when the
	// conversation was destroyed.
	GroupLeft(conversationID int64, v *View)
}

// LatestLoader resolves latest-message previews; implemented by the message
// ledger.
type LatestLoader interface {
	LatestByIDs(ctx context.Context, ids []int64) (map[int64]LatestMessage, error)
}

type Service interface {
	GetOrCreateDirect(ctx context.Context, actorID, peerID string) (*View, error)
	CreateGroup(ctx context.Context, creatorID string, memberIDs []string, name string) (*View, error)
	Rename(ctx context.Context, id int64, actorID, name string) (*View, error)
	AddMember(ctx context.Context, id int64, actorID, userID string) (*View, error)
	RemoveMember(ctx context.Context, id int64, actorID, userID string) (*View, error)
	Leave(ctx context.Context, id int64, userID string) (*LeaveResult, error)
	ListForUser(ctx context.Context, userID string) ([]View, error)
	MarkRead(ctx context.Context, id int64, userID string) error
}

type service struct {
	repo   Repository
	users  user.Repository
	latest LatestLoader
	fan    Fanout
}

func NewService(r Repository, users user.Repository, latest LatestLoader, fan Fanout) Service {
	return &service{repo: r, users: users, latest: latest, fan: fan}
}

func (s *service) GetOrCreateDirect(ctx context.Context, actorID, peerID string) (*View, error) {
	if peerID == "" {
		return nil, errs.Validationf("peer id is required")
	}
	if peerID == actorID {
		return nil, errs.Validationf("cannot open a direct conversation with yourself")
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	c, err := s.repo.FindDirect(ctx, DirectKeyFor(actorID, peerID))
	switch {
	case err == nil:
		// Existing thread: force the member rows to exist (defensive
		// upsert, safe to repeat), then reload so the response carries
		// the repaired roster.
		if err := s.repo.EnsureMembers(ctx, c.ID, actorID, peerID); err != nil {
			return nil, err
		}
		if c, err = s.repo.GetByID(ctx, c.ID); err != nil {
			return nil, err
		}
	case errs.Is(err, errs.NotFound):
		if c, err = s.repo.CreateDirect(ctx, actorID, peerID); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return s.view(ctx, c, actorID)
}

func (s *service) CreateGroup(ctx context.Context, creatorID string, memberIDs []string, name string) (*View, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errs.Validationf("group name is required")
	}
	members := dedupe(append(memberIDs, creatorID))
	if len(members) < 3 {
		return nil, errs.Validationf("group must have at least 3 members")
	}

	c := &Conversation{IsGroup: true, Name: name, AdminID: creatorID}
	if err := s.repo.CreateGroup(ctx, c, members); err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c, creatorID)
}

func (s *service) Rename(ctx context.Context, id int64, actorID, name string) (*View, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errs.Validationf("group name is required")
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, errs.Validationf("not a group conversation")
	}
	if c.AdminID != actorID {
		return nil, errs.Permissionf("only the admin can rename the group")
	}
	if err := s.repo.UpdateName(ctx, id, name); err != nil {
		return nil, err
	}
	c.Name = name
	v, err := s.view(ctx, c, actorID)
	if err != nil {
		return nil, err
	}
	if s.fan != nil {
		s.fan.GroupRenamed(v)
	}
	return v, nil
}

func (s *service) AddMember(ctx context.Context, id int64, actorID, userID string) (*View, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, errs.Validationf("not a group conversation")
	}
	if c.AdminID != actorID {
		return nil, errs.Permissionf("only the admin can add members")
	}
	if c.HasMember(userID) {
		return nil, errs.Conflictf("user already in group")
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.repo.AddMember(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.updatedView(ctx, id, actorID)
}

func (s *service) RemoveMember(ctx context.Context, id int64, actorID, userID string) (*View, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, errs.Validationf("not a group conversation")
	}
	if c.AdminID != actorID {
		return nil, errs.Permissionf("only the admin can remove members")
	}
	if userID == c.AdminID {
		// Admin departure goes through Leave so the admin invariant
		// cannot be broken by the remove path.
		return nil, errs.Permissionf("admin cannot remove themselves; leave instead")
	}
	if !c.HasMember(userID) {
		return nil, errs.NotFoundf("user is not a member")
	}
	if err := s.repo.RemoveMember(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.updatedView(ctx, id, actorID)
}

func (s *service) Leave(ctx context.Context, id int64, userID string) (*LeaveResult, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup {
		return nil, errs.Validationf("not a group conversation")
	}
	if !c.HasMember(userID) {
		return nil, errs.NotFoundf("user is not a member")
	}
	if c.AdminID == userID && len(c.Members) > 1 {
		return nil, errs.Permissionf("admin must transfer the admin role before leaving")
	}

	if len(c.Members) == 1 {
		// Last member out: destroy the conversation and its state rows.
		if err := s.repo.Delete(ctx, id); err != nil {
			return nil, err
		}
		if s.fan != nil {
			s.fan.GroupLeft(id, nil)
		}
		return &LeaveResult{Deleted: true}, nil
	}

	if err := s.repo.RemoveMember(ctx, id, userID); err != nil {
		return nil, err
	}
	v, err := s.updatedViewNoFan(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if s.fan != nil {
		s.fan.GroupLeft(id, v)
	}
	return &LeaveResult{Deleted: false, Conversation: v}, nil
}

func (s *service) ListForUser(ctx context.Context, userID string) ([]View, error) {
	convs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	states, err := s.repo.StatesFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	var msgIDs []int64
	seen := map[string]struct{}{}
	var userIDs []string
	for _, c := range convs {
		if c.LastMessageID != nil {
			msgIDs = append(msgIDs, *c.LastMessageID)
		}
		for _, m := range c.Members {
			if _, ok := seen[m.UserID]; !ok {
				seen[m.UserID] = struct{}{}
				userIDs = append(userIDs, m.UserID)
			}
		}
	}

	previews := map[int64]LatestMessage{}
	if s.latest != nil && len(msgIDs) > 0 {
		if previews, err = s.latest.LatestByIDs(ctx, msgIDs); err != nil {
			return nil, err
		}
	}
	users, err := s.users.GetByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	out := make([]View, 0, len(convs))
	for _, c := range convs {
		v := assemble(&c, users, previews)
		v.UnreadCount = states[c.ID].UnreadCount
		out = append(out, *v)
	}
	return out, nil
}

func (s *service) MarkRead(ctx context.Context, id int64, userID string) error {
	return s.repo.ResetUnread(ctx, id, userID, time.Now().UTC())
}

func (s *service) updatedView(ctx context.Context, id int64, actorID string) (*View, error) {
	v, err := s.updatedViewNoFan(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	if s.fan != nil {
		s.fan.GroupUpdated(v)
	}
	return v, nil
}

func (s *service) updatedViewNoFan(ctx context.Context, id int64, actorID string) (*View, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c, actorID)
}

func (s *service) view(ctx context.Context, c *Conversation, actorID string) (*View, error) {
	users, err := s.users.GetByIDs(ctx, c.MemberIDs())
	if err != nil {
		return nil, err
	}
	previews := map[int64]LatestMessage{}
	if s.latest != nil && c.LastMessageID != nil {
		if previews, err = s.latest.LatestByIDs(ctx, []int64{*c.LastMessageID}); err != nil {
			return nil, err
		}
	}
	v := assemble(c, users, previews)
	for _, m := range c.Members {
		if m.UserID == actorID {
			v.UnreadCount = m.UnreadCount
		}
	}
	return v, nil
}

func assemble(c *Conversation, users map[string]user.User, previews map[int64]LatestMessage) *View {
	v := &View{
		ID:        c.ID,
		IsGroup:   c.IsGroup,
		Name:      c.Name,
		AdminID:   c.AdminID,
		Members:   make([]user.User, 0, len(c.Members)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, m := range c.Members {
		if u, ok := users[m.UserID]; ok {
			v.Members = append(v.Members, u)
		} else {
			v.Members = append(v.Members, user.User{ID: m.UserID})
		}
	}
	if c.LastMessageID != nil {
		if p, ok := previews[*c.LastMessageID]; ok {
			v.LastMessage = &p
		}
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
