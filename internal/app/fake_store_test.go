package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"uccs/api/internal/store"
)

// fakeStore is an in-memory dataStore plus sessionStore for service tests.
// Individual methods can be overridden through the fn fields.
type fakeStore struct {
	mu sync.Mutex

	users          map[string]store.User
	emailIndex     map[string]string
	revokedJTIs    map[string]bool
	sessions       map[string]fakeSession
	clients        map[string]store.Client
	projects       map[string]store.Project
	questionnaires []store.Questionnaire
	answers        map[string]map[string]string
	proposals      map[string][]store.Proposal

	insertProposalFn func(ctx context.Context, id, projectID, html string) (store.Proposal, error)
}

type fakeSession struct {
	userID    string
	expiresAt time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]store.User{},
		emailIndex:  map[string]string{},
		revokedJTIs: map[string]bool{},
		sessions:    map[string]fakeSession{},
		clients:     map[string]store.Client{},
		projects:    map[string]store.Project{},
		answers:     map[string]map[string]string{},
		proposals:   map[string][]store.Proposal{},
	}
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	f.emailIndex[user.Email] = user.ID
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.emailIndex[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return f.users[id], nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = fakeSession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[tokenHash]
	if !ok || time.Now().After(session.expiresAt) {
		return store.User{}, sql.ErrNoRows
	}
	user, ok := f.users[session.userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func (f *fakeStore) InsertClient(ctx context.Context, client store.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[client.ID] = client
	return nil
}

func (f *fakeStore) ListClients(ctx context.Context) ([]store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Client, 0, len(f.clients))
	for _, client := range f.clients {
		items = append(items, client)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (f *fakeStore) GetClient(ctx context.Context, clientID string) (store.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	client, ok := f.clients[clientID]
	if !ok {
		return store.Client{}, sql.ErrNoRows
	}
	return client, nil
}

func (f *fakeStore) DeleteClientCascade(ctx context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.clients[clientID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.clients, clientID)
	for id, project := range f.projects {
		if project.ClientID == clientID {
			delete(f.projects, id)
			delete(f.answers, id)
			delete(f.proposals, id)
		}
	}
	return nil
}

func (f *fakeStore) InsertProject(ctx context.Context, project store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[project.ID] = project
	return nil
}

func (f *fakeStore) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (f *fakeStore) ListProjectsByClient(ctx context.Context, clientID string) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []store.Project{}
	for _, project := range f.projects {
		if project.ClientID == clientID {
			items = append(items, project)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func (f *fakeStore) UpdateProjectMeta(ctx context.Context, projectID, name, projectType, complexity, budget, timeline string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Name = name
	project.ProjectType = projectType
	project.Complexity = complexity
	project.Budget = budget
	project.Timeline = timeline
	f.projects[projectID] = project
	return nil
}

func (f *fakeStore) UpdateProjectStatus(ctx context.Context, projectID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return sql.ErrNoRows
	}
	project.Status = status
	f.projects[projectID] = project
	return nil
}

func (f *fakeStore) DeleteProjectWithAnswers(ctx context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.projects, projectID)
	delete(f.answers, projectID)
	delete(f.proposals, projectID)
	return nil
}

func (f *fakeStore) InsertQuestionnaire(ctx context.Context, q store.Questionnaire) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionnaires = append(f.questionnaires, q)
	return nil
}

func (f *fakeStore) InsertQuestion(ctx context.Context, q store.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.questionnaires {
		if f.questionnaires[i].ID == q.QuestionnaireID {
			f.questionnaires[i].Questions = append(f.questionnaires[i].Questions, q)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) ActiveQuestionnaire(ctx context.Context) (store.Questionnaire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.questionnaires {
		if q.IsActive {
			return q, nil
		}
	}
	return store.Questionnaire{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertAnswer(ctx context.Context, projectID, questionID, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers[projectID] == nil {
		f.answers[projectID] = map[string]string{}
	}
	f.answers[projectID][questionID] = value
	return nil
}

func (f *fakeStore) DeleteAnswer(ctx context.Context, projectID, questionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.answers[projectID][questionID]; !ok {
		return false, nil
	}
	delete(f.answers[projectID], questionID)
	return true, nil
}

func (f *fakeStore) ListAnswers(ctx context.Context, projectID string) ([]store.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []store.Answer{}
	for questionID, value := range f.answers[projectID] {
		items = append(items, store.Answer{ProjectID: projectID, QuestionID: questionID, Value: value})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].QuestionID < items[j].QuestionID })
	return items, nil
}

func (f *fakeStore) InsertProposal(ctx context.Context, id, projectID, html string) (store.Proposal, error) {
	if f.insertProposalFn != nil {
		return f.insertProposalFn(ctx, id, projectID, html)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	proposal := store.Proposal{
		ID:        id,
		ProjectID: projectID,
		Version:   len(f.proposals[projectID]) + 1,
		HTML:      html,
		CreatedAt: time.Now(),
	}
	f.proposals[projectID] = append(f.proposals[projectID], proposal)
	return proposal, nil
}

func (f *fakeStore) ListProposals(ctx context.Context, projectID string) ([]store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Proposal, len(f.proposals[projectID]))
	copy(items, f.proposals[projectID])
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (f *fakeStore) GetProposal(ctx context.Context, projectID string, version int) (store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, proposal := range f.proposals[projectID] {
		if proposal.Version == version {
			return proposal, nil
		}
	}
	return store.Proposal{}, sql.ErrNoRows
}
