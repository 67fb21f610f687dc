package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/es"
	"mindbridge-go/pkg/tasks"
)

// ---- users ----

type stubUserRepo struct {
	mu     sync.Mutex
	users  map[uint]*model.User
	nextID uint
}

func newStubUserRepo(users ...model.User) *stubUserRepo {
	r := &stubUserRepo{users: map[uint]*model.User{}}
	for i := range users {
		u := users[i]
		if u.ID > r.nextID {
			r.nextID = u.ID
		}
		r.users[u.ID] = &u
	}
	return r
}

func (r *stubUserRepo) Create(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("create user: %w", apperr.ErrConflict)
		}
	}
	r.nextID++
	user.ID = r.nextID
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find user %s: %w", username, apperr.ErrNotFound)
}

func (r *stubUserRepo) FindByID(_ context.Context, id uint) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("find user %d: %w", id, apperr.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *stubUserRepo) Update(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *stubUserRepo) sorted(role model.Role) []model.User {
	var out []model.User
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *stubUserRepo) FindWithPagination(_ context.Context, role model.Role, offset, limit int) ([]model.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted(role)
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *stubUserRepo) ListActiveByRole(_ context.Context, role model.Role) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.User
	for _, u := range r.sorted(role) {
		if u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *stubUserRepo) CountByRole(_ context.Context, role model.Role) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sorted(role))), nil
}

// ---- appointments ----

// stubAppointmentRepo 模拟 slot_key 唯一索引。
type stubAppointmentRepo struct {
	mu     sync.Mutex
	appts  map[uint]*model.Appointment
	nextID uint
}

func newStubAppointmentRepo() *stubAppointmentRepo {
	return &stubAppointmentRepo{appts: map[uint]*model.Appointment{}}
}

func (r *stubAppointmentRepo) slotTaken(key *string, selfID uint) bool {
	if key == nil {
		return false
	}
	for id, a := range r.appts {
		if id != selfID && a.SlotKey != nil && *a.SlotKey == *key {
			return true
		}
	}
	return false
}

func (r *stubAppointmentRepo) Create(_ context.Context, appt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTaken(appt.SlotKey, 0) {
		return fmt.Errorf("create appointment: %w", apperr.ErrConflict)
	}
	r.nextID++
	appt.ID = r.nextID
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *stubAppointmentRepo) FindByID(_ context.Context, id uint) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, fmt.Errorf("find appointment %d: %w", id, apperr.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *stubAppointmentRepo) Update(_ context.Context, appt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotTaken(appt.SlotKey, appt.ID) {
		return fmt.Errorf("update appointment: %w", apperr.ErrConflict)
	}
	cp := *appt
	r.appts[appt.ID] = &cp
	return nil
}

func (r *stubAppointmentRepo) filter(keep func(a *model.Appointment) bool) []model.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Appointment
	for _, a := range r.appts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	return out
}

func (r *stubAppointmentRepo) ListByCounselorBetween(_ context.Context, counselorID uint, from, to time.Time) ([]model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool {
		return a.CounselorID == counselorID && !a.AppointmentDate.Before(from) && a.AppointmentDate.Before(to)
	}), nil
}

func (r *stubAppointmentRepo) ListByStudent(_ context.Context, studentID uint) ([]model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool { return a.StudentID == studentID }), nil
}

func (r *stubAppointmentRepo) ListByCounselor(_ context.Context, counselorID uint) ([]model.Appointment, error) {
	return r.filter(func(a *model.Appointment) bool { return a.CounselorID == counselorID }), nil
}

func (r *stubAppointmentRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.appts)), nil
}

func (r *stubAppointmentRepo) CountByStatus(_ context.Context) (map[model.AppointmentStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.AppointmentStatus]int64{}
	for _, a := range r.appts {
		out[a.Status]++
	}
	return out, nil
}

func (r *stubAppointmentRepo) Recent(_ context.Context, limit int) ([]model.Appointment, error) {
	all := r.filter(func(*model.Appointment) bool { return true })
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ---- chat ----

type stubChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	messages map[string][]model.ChatMessage
	nextID   uint
}

func newStubChatRepo() *stubChatRepo {
	return &stubChatRepo{sessions: map[string]*model.ChatSession{}, messages: map[string][]model.ChatMessage{}}
}

func (r *stubChatRepo) CreateSession(_ context.Context, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.sessions[s.SessionID]; dup {
		return fmt.Errorf("create session: %w", apperr.ErrConflict)
	}
	r.nextID++
	s.ID = r.nextID
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *stubChatRepo) FindSession(_ context.Context, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("find session %s: %w", id, apperr.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *stubChatRepo) UpdateSession(_ context.Context, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *stubChatRepo) AppendMessages(_ context.Context, s *model.ChatSession, msgs []model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.messages[s.SessionID]
	for _, m := range msgs {
		for _, e := range existing {
			if e.Seq == m.Seq {
				return fmt.Errorf("append message seq %d: %w", m.Seq, apperr.ErrConflict)
			}
		}
		existing = append(existing, m)
	}
	r.messages[s.SessionID] = existing
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *stubChatRepo) ListMessages(_ context.Context, id string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]model.ChatMessage(nil), r.messages[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (r *stubChatRepo) ListSessionsByUser(_ context.Context, userID uint, limit int) ([]model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubChatRepo) CountSessions(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.sessions)), nil
}

func (r *stubChatRepo) CountByRiskLevel(_ context.Context) (map[model.RiskLevel]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.RiskLevel]int64{}
	for _, s := range r.sessions {
		out[s.RiskLevel]++
	}
	return out, nil
}

// stubHistoryCache 内存版聊天历史缓存。
type stubHistoryCache struct {
	mu   sync.Mutex
	data map[string][]model.ChatMessage
	size int
}

func newStubHistoryCache(size int) *stubHistoryCache {
	return &stubHistoryCache{data: map[string][]model.ChatMessage{}, size: size}
}

func (c *stubHistoryCache) Get(_ context.Context, id string) ([]model.ChatMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[id]
	return append([]model.ChatMessage(nil), m...), ok, nil
}

func (c *stubHistoryCache) Append(_ context.Context, id string, msgs ...model.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := append(c.data[id], msgs...)
	if len(all) > c.size {
		all = all[len(all)-c.size:]
	}
	c.data[id] = all
	return nil
}

func (c *stubHistoryCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, id)
	return nil
}

// ---- screening ----

type stubScreeningRepo struct {
	mu      sync.Mutex
	results []model.ScreeningResult
}

func (r *stubScreeningRepo) Create(_ context.Context, res *model.ScreeningResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.ID = uint(len(r.results) + 1)
	r.results = append(r.results, *res)
	return nil
}

func (r *stubScreeningRepo) FindByID(_ context.Context, id uint) (*model.ScreeningResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.results {
		if r.results[i].ID == id {
			cp := r.results[i]
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find screening %d: %w", id, apperr.ErrNotFound)
}

func (r *stubScreeningRepo) ListByUser(_ context.Context, userID uint) ([]model.ScreeningResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScreeningResult
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].UserID == userID {
			out = append(out, r.results[i])
		}
	}
	return out, nil
}

func (r *stubScreeningRepo) CountByTypeAndSeverity(_ context.Context) ([]repository.SeverityCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[[2]string]int64{}
	for _, res := range r.results {
		counts[[2]string{res.ScreeningType, res.Severity}]++
	}
	var out []repository.SeverityCount
	for k, n := range counts {
		out = append(out, repository.SeverityCount{ScreeningType: k[0], Severity: k[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.Compare(out[i].ScreeningType+out[i].Severity, out[j].ScreeningType+out[j].Severity) < 0
	})
	return out, nil
}

func (r *stubScreeningRepo) MarkCounselorNotified(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.results {
		if r.results[i].ID == id {
			r.results[i].CounselorNotified = true
			return nil
		}
	}
	return fmt.Errorf("mark screening %d: %w", id, apperr.ErrNotFound)
}

func (r *stubScreeningRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.results)), nil
}

func (r *stubScreeningRepo) Recent(_ context.Context, limit int) ([]model.ScreeningResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ScreeningResult
	for i := len(r.results) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.results[i])
	}
	return out, nil
}

// ---- publisher ----

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []tasks.NotificationTask
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, task tasks.NotificationTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return p.err
}

func (p *recordingPublisher) kinds() []tasks.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]tasks.Kind, len(p.tasks))
	for i, t := range p.tasks {
		out[i] = t.Kind
	}
	return out
}

// ---- token blacklist ----

type stubBlacklist struct {
	mu     sync.Mutex
	tokens map[string]time.Duration
}

func newStubBlacklist() *stubBlacklist {
	return &stubBlacklist{tokens: map[string]time.Duration{}}
}

func (b *stubBlacklist) Add(_ context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ttl > 0 {
		b.tokens[token] = ttl
	}
	return nil
}

func (b *stubBlacklist) Contains(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tokens[token]
	return ok, nil
}

// ---- resources ----

type stubResourceRepo struct {
	mu        sync.Mutex
	resources map[uint]*model.Resource
	nextID    uint
}

func newStubResourceRepo() *stubResourceRepo {
	return &stubResourceRepo{resources: map[uint]*model.Resource{}}
}

func (r *stubResourceRepo) Create(_ context.Context, res *model.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	res.ID = r.nextID
	cp := *res
	r.resources[res.ID] = &cp
	return nil
}

func (r *stubResourceRepo) FindByID(_ context.Context, id uint) (*model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok || !res.IsActive {
		return nil, fmt.Errorf("find resource %d: %w", id, apperr.ErrNotFound)
	}
	cp := *res
	return &cp, nil
}

func (r *stubResourceRepo) FindByIDs(_ context.Context, ids []uint) ([]model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Resource
	for _, id := range ids {
		if res, ok := r.resources[id]; ok && res.IsActive {
			out = append(out, *res)
		}
	}
	// 与数据库一致，不保证顺序
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *stubResourceRepo) Update(_ context.Context, res *model.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *res
	r.resources[res.ID] = &cp
	return nil
}

func (r *stubResourceRepo) List(_ context.Context, filter repository.ResourceFilter, offset, limit int) ([]model.Resource, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Resource
	for _, res := range r.resources {
		if !res.IsActive || (filter.Type != "" && res.Type != filter.Type) || (filter.Category != "" && res.Category != filter.Category) {
			continue
		}
		all = append(all, *res)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *stubResourceRepo) SearchLike(_ context.Context, query string, limit int) ([]model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(query)
	var out []model.Resource
	for _, res := range r.resources {
		if res.IsActive && (strings.Contains(strings.ToLower(res.Title), q) || strings.Contains(strings.ToLower(res.Description), q)) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubResourceRepo) IncrementViews(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.resources[id]; ok {
		res.Views++
	}
	return nil
}

func (r *stubResourceRepo) AddRating(_ context.Context, id uint, rating int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.resources[id]
	if !ok || !res.IsActive {
		return fmt.Errorf("rate resource %d: %w", id, apperr.ErrNotFound)
	}
	res.RatingAverage = (res.RatingAverage*float64(res.RatingCount) + float64(rating)) / float64(res.RatingCount+1)
	res.RatingCount++
	return nil
}

func (r *stubResourceRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, res := range r.resources {
		if res.IsActive {
			n++
		}
	}
	return n, nil
}

type stubIndex struct {
	docs []model.ResourceDocument
	hits []es.Hit
	err  error
}

func (i *stubIndex) Index(_ context.Context, doc model.ResourceDocument) error {
	i.docs = append(i.docs, doc)
	return nil
}

func (i *stubIndex) Search(_ context.Context, _ string, _ int) ([]es.Hit, error) {
	return i.hits, i.err
}

type stubStore struct {
	objects map[string][]byte
}

func newStubStore() *stubStore {
	return &stubStore{objects: map[string][]byte{}}
}

func (s *stubStore) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[name] = b
	return nil
}

func (s *stubStore) PresignedURL(_ context.Context, name, fileName string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://minio.local/%s?file=%s&exp=%d", name, fileName, int(expiry.Seconds())), nil
}

func (s *stubStore) Remove(_ context.Context, name string) error {
	delete(s.objects, name)
	return nil
}

// ---- peer support ----

type stubPeerRepo struct {
	mu       sync.Mutex
	posts    map[uint]*model.Post
	comments []model.PostComment
	likes    map[[2]uint]bool
	groups   map[uint]*model.SupportGroup
	members  map[[2]uint]model.GroupMember
	nextID   uint
}

func newStubPeerRepo() *stubPeerRepo {
	return &stubPeerRepo{
		posts:   map[uint]*model.Post{},
		likes:   map[[2]uint]bool{},
		groups:  map[uint]*model.SupportGroup{},
		members: map[[2]uint]model.GroupMember{},
	}
}

func (r *stubPeerRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *stubPeerRepo) CreatePost(_ context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	post.ID = r.id()
	cp := *post
	cp.Comments = nil
	r.posts[post.ID] = &cp
	return nil
}

func (r *stubPeerRepo) FindPost(_ context.Context, id uint) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.posts[id]
	if !ok {
		return nil, fmt.Errorf("find post %d: %w", id, apperr.ErrNotFound)
	}
	cp := *p
	cp.Comments = nil
	for _, c := range r.comments {
		if c.PostID == id {
			cp.Comments = append(cp.Comments, c)
		}
	}
	return &cp, nil
}

func (r *stubPeerRepo) UpdatePost(_ context.Context, post *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *post
	cp.Comments = nil
	r.posts[post.ID] = &cp
	return nil
}

func (r *stubPeerRepo) ListPosts(_ context.Context, filter repository.PostFilter, offset, limit int) ([]model.Post, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.Post
	for _, p := range r.posts {
		if (filter.Category != "" && p.Category != filter.Category) ||
			(filter.Status != "" && p.Status != filter.Status) ||
			(filter.AuthorID != 0 && p.AuthorID != filter.AuthorID) ||
			(filter.Flagged && !p.Flagged) {
			continue
		}
		all = append(all, *p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *stubPeerRepo) IncrementPostViews(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[id]; ok {
		p.Views++
	}
	return nil
}

func (r *stubPeerRepo) AddLike(_ context.Context, postID, userID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uint{postID, userID}
	if r.likes[key] {
		return 0, fmt.Errorf("like post %d: %w", postID, apperr.ErrConflict)
	}
	r.likes[key] = true
	r.posts[postID].LikeCount++
	return r.posts[postID].LikeCount, nil
}

func (r *stubPeerRepo) CreateComment(_ context.Context, c *model.PostComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.id()
	r.comments = append(r.comments, *c)
	return nil
}

func (r *stubPeerRepo) FindComment(_ context.Context, postID, commentID uint) (*model.PostComment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.comments {
		if c.ID == commentID && c.PostID == postID {
			cp := c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("find comment %d: %w", commentID, apperr.ErrNotFound)
}

func (r *stubPeerRepo) UpdateComment(_ context.Context, c *model.PostComment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.comments {
		if r.comments[i].ID == c.ID {
			r.comments[i] = *c
		}
	}
	return nil
}

func (r *stubPeerRepo) CreateGroup(_ context.Context, g *model.SupportGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g.ID = r.id()
	g.MemberCount = 1
	cp := *g
	r.groups[g.ID] = &cp
	r.members[[2]uint{g.ID, g.CreatedBy}] = model.GroupMember{GroupID: g.ID, UserID: g.CreatedBy, Role: model.GroupRoleAdmin}
	return nil
}

func (r *stubPeerRepo) FindGroup(_ context.Context, id uint) (*model.SupportGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, fmt.Errorf("find group %d: %w", id, apperr.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (r *stubPeerRepo) ListActiveGroups(_ context.Context) ([]model.SupportGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SupportGroup
	for _, g := range r.groups {
		if g.IsActive {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *stubPeerRepo) ListGroupsByMember(_ context.Context, userID uint) ([]model.SupportGroup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.SupportGroup
	for key := range r.members {
		if key[1] == userID {
			out = append(out, *r.groups[key[0]])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *stubPeerRepo) FindMember(_ context.Context, groupID, userID uint) (*model.GroupMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[[2]uint{groupID, userID}]
	if !ok {
		return nil, fmt.Errorf("find member: %w", apperr.ErrNotFound)
	}
	return &m, nil
}

func (r *stubPeerRepo) AddMember(_ context.Context, m *model.GroupMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uint{m.GroupID, m.UserID}
	if _, ok := r.members[key]; ok {
		return fmt.Errorf("add member: %w", apperr.ErrConflict)
	}
	r.members[key] = *m
	r.groups[m.GroupID].MemberCount++
	return nil
}

func (r *stubPeerRepo) RemoveMember(_ context.Context, groupID, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]uint{groupID, userID}
	if _, ok := r.members[key]; !ok {
		return fmt.Errorf("remove member: %w", apperr.ErrNotFound)
	}
	delete(r.members, key)
	r.groups[groupID].MemberCount--
	return nil
}
