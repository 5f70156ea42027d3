package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"uccs/api/internal/auth"
	"uccs/api/internal/authpw"
	"uccs/api/internal/brief"
	"uccs/api/internal/config"
	"uccs/api/internal/email"
	"uccs/api/internal/intake"
	"uccs/api/internal/search"
	"uccs/api/internal/store"
	"uccs/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type ClientInput struct {
	Name         string `json:"name"`
	ClientType   string `json:"clientType"`
	Industry     string `json:"industry"`
	ContactName  string `json:"contactName"`
	ContactEmail string `json:"contactEmail"`
}

type ProjectInput struct {
	ClientID    string `json:"clientId"`
	Name        string `json:"name"`
	ProjectType string `json:"projectType"`
	Complexity  string `json:"complexity"`
	Budget      string `json:"budget"`
	Timeline    string `json:"timeline"`
}

// BatchResult summarizes one answer batch: rows written, rows removed by
// empty submissions, and question ids that were skipped (with the reason
// appended after a colon).
type BatchResult struct {
	Applied int      `json:"applied"`
	Deleted int      `json:"deleted"`
	Skipped []string `json:"skipped"`
}

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)

	InsertClient(ctx context.Context, client store.Client) error
	ListClients(ctx context.Context) ([]store.Client, error)
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	DeleteClientCascade(ctx context.Context, clientID string) error

	InsertProject(ctx context.Context, project store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListProjectsByClient(ctx context.Context, clientID string) ([]store.Project, error)
	UpdateProjectMeta(ctx context.Context, projectID, name, projectType, complexity, budget, timeline string) error
	UpdateProjectStatus(ctx context.Context, projectID, status string) error
	DeleteProjectWithAnswers(ctx context.Context, projectID string) error

	InsertQuestionnaire(ctx context.Context, q store.Questionnaire) error
	InsertQuestion(ctx context.Context, q store.Question) error
	ActiveQuestionnaire(ctx context.Context) (store.Questionnaire, error)

	UpsertAnswer(ctx context.Context, projectID, questionID, value string) error
	DeleteAnswer(ctx context.Context, projectID, questionID string) (bool, error)
	ListAnswers(ctx context.Context, projectID string) ([]store.Answer, error)

	InsertProposal(ctx context.Context, id, projectID, html string) (store.Proposal, error)
	ListProposals(ctx context.Context, projectID string) ([]store.Proposal, error)
	GetProposal(ctx context.Context, projectID string, version int) (store.Proposal, error)
}

// sessionStore holds refresh tokens; Redis when configured, Postgres
// otherwise. Lookup may return only the user id; callers hydrate.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	auth      *authpw.Service
	search    *search.Service
	artifacts *brief.ArtifactStore
	notifier  *email.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		auth:     authpw.NewService(dataStore),
		search:   searchService,
	}
}

func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchService *search.Service) *Service {
	service := New(cfg, dataStore, searchService)
	service.sessions = sessions
	return service
}

// SetArtifactStore enables PDF artifact caching in object storage.
func (s *Service) SetArtifactStore(artifacts *brief.ArtifactStore) {
	s.artifacts = artifacts
}

// SetNotifier enables the submission confirmation email.
func (s *Service) SetNotifier(notifier *email.Service) {
	s.notifier = notifier
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ---- bootstrap ----

// Bootstrap installs the question bank and demo data on first boot. It is
// a no-op once an active questionnaire exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	if _, err := s.store.ActiveQuestionnaire(ctx); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	questionnaire := store.Questionnaire{
		ID:          util.NewID("qnr"),
		Name:        "Universal v1",
		Version:     1,
		Description: "Standard consultation questionnaire for web projects.",
		IsActive:    true,
	}
	if err := s.store.InsertQuestionnaire(ctx, questionnaire); err != nil {
		return err
	}

	for _, q := range seedQuestions {
		q.QuestionnaireID = questionnaire.ID
		if err := s.store.InsertQuestion(ctx, q); err != nil {
			return err
		}
	}

	if _, err := s.store.GetUserByEmail(ctx, "demo@uccs.local"); err != nil {
		if _, err := s.auth.SignUp(ctx, authpw.SignUpRequest{
			Email:       "demo@uccs.local",
			Password:    "demo-pass-1",
			DisplayName: "Demo Consultant",
		}); err != nil {
			return err
		}
	}

	client := store.Client{
		ID:           util.NewID("cli"),
		Name:         "Acme Retail",
		ClientType:   "SMALL_BUSINESS",
		Industry:     "Retail",
		ContactName:  "Dana Acme",
		ContactEmail: "dana@acme.example",
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return err
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		ClientID:    client.ID,
		Name:        "Acme E-commerce Launch",
		ProjectType: "E-commerce",
		Complexity:  "MEDIUM",
		Budget:      "10k-25k",
		Timeline:    "3 months",
		Status:      store.ProjectDraft,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return err
	}

	if s.search != nil {
		s.search.IndexClient(clientRecord(client))
		s.search.IndexProject(projectRecord(project))
	}
	return nil
}

var seedQuestions = []store.Question{
	{ID: "business_goals", Phase: intake.PhaseDiscovery, Order: 1, QuestionText: "What are the primary goals of this project?", Type: store.QuestionCheckbox,
		Options: []string{"Generate leads", "Increase online sales", "Build brand awareness", "Provide customer support", "Other"}},
	{ID: "success_metric", Phase: intake.PhaseDiscovery, Order: 2, QuestionText: "How will you measure success six months after launch?", Type: store.QuestionTextarea},
	{ID: "target_audience", Phase: intake.PhaseAudience, Order: 1, QuestionText: "Describe your target audience.", Type: store.QuestionTextarea},
	{ID: "primary_device", Phase: intake.PhaseAudience, Order: 2, QuestionText: "Which devices will your audience mostly use?", Type: store.QuestionDropdown,
		Options: []string{"Mobile first", "Desktop first", "Both equally"}},
	{ID: "site_type", Phase: intake.PhaseFunctional, Order: 1, QuestionText: "What kind of site is this?", Type: store.QuestionDropdown,
		Options: []string{"Brochure site", "E-commerce", "Web application", "Booking system", "Other"}},
	{ID: "payment_methods", Phase: intake.PhaseFunctional, Order: 2, QuestionText: "Which payment methods should be supported?", Type: store.QuestionCheckbox,
		Options: []string{"Credit card", "PayPal", "Apple Pay", "Klarna", "Other"},
		ShowIf:  &store.ShowIf{QuestionID: "site_type", Equals: "E-commerce"}},
	{ID: "integrations", Phase: intake.PhaseFunctional, Order: 3, QuestionText: "Which third-party systems must be integrated?", Type: store.QuestionTextarea},
	{ID: "hosting", Phase: intake.PhaseTech, Order: 1, QuestionText: "What is your hosting situation?", Type: store.QuestionDropdown,
		Options: []string{"We need hosting", "We have hosting", "Not sure"}},
	{ID: "compliance", Phase: intake.PhaseTech, Order: 2, QuestionText: "Which compliance requirements apply?", Type: store.QuestionCheckbox,
		Options: []string{"GDPR", "WCAG accessibility", "PCI DSS", "None", "Other"}},
	{ID: "brand_assets", Phase: intake.PhaseDesign, Order: 1, QuestionText: "What brand assets exist today?", Type: store.QuestionDropdown,
		Options: []string{"Complete brand guide", "Logo only", "Nothing yet"}},
	{ID: "design_refs", Phase: intake.PhaseDesign, Order: 2, QuestionText: "List sites whose look and feel you admire.", Type: store.QuestionTextarea},
	{ID: "content_ready", Phase: intake.PhaseContent, Order: 1, QuestionText: "How ready is your content (copy, images, video)?", Type: store.QuestionDropdown,
		Options: []string{"Ready", "Partially ready", "Needs creation"}},
	{ID: "cms_pref", Phase: intake.PhaseStack, Order: 1, QuestionText: "Do you have a CMS or platform preference?", Type: store.QuestionDropdown,
		Options: []string{"WordPress", "Headless CMS", "Custom build", "No preference", "Other"}},
	{ID: "stack_notes", Phase: intake.PhaseStack, Order: 2, QuestionText: "Anything else the technical team should know?", Type: store.QuestionText},
}

// ---- sessions ----

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if user.DisplayName == "" {
		user, err = s.store.GetUserByID(ctx, user.ID)
		if err != nil {
			return Session{}, err
		}
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.SessionSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// ---- search ----

func (s *Service) Search(ctx context.Context, text, filterType string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// ---- clients ----

func (s *Service) CreateClient(ctx context.Context, input ClientInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	client := store.Client{
		ID:           util.NewID("cli"),
		Name:         name,
		ClientType:   firstNonBlank(strings.TrimSpace(input.ClientType), "SMALL_BUSINESS"),
		Industry:     strings.TrimSpace(input.Industry),
		ContactName:  strings.TrimSpace(input.ContactName),
		ContactEmail: strings.TrimSpace(input.ContactEmail),
	}
	if err := s.store.InsertClient(ctx, client); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexClient(clientRecord(client))
	}
	return clientPayload(client), nil
}

func (s *Service) ListClients(ctx context.Context) ([]map[string]any, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(clients))
	for _, client := range clients {
		items = append(items, clientPayload(client))
	}
	return items, nil
}

func (s *Service) GetClient(ctx context.Context, clientID string) (map[string]any, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjectsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	projectItems := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		projectItems = append(projectItems, projectPayload(project))
	}
	payload := clientPayload(client)
	payload["projects"] = projectItems
	return payload, nil
}

func (s *Service) DeleteClient(ctx context.Context, clientID string) error {
	projects, err := s.store.ListProjectsByClient(ctx, clientID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteClientCascade(ctx, clientID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteClient(clientID)
		for _, project := range projects {
			s.search.DeleteProject(project.ID)
		}
	}
	return nil
}

// ---- projects ----

func (s *Service) CreateProject(ctx context.Context, input ProjectInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if _, err := s.store.GetClient(ctx, strings.TrimSpace(input.ClientID)); err != nil {
		return nil, err
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		ClientID:    strings.TrimSpace(input.ClientID),
		Name:        name,
		ProjectType: firstNonBlank(strings.TrimSpace(input.ProjectType), "WEBSITE"),
		Complexity:  strings.TrimSpace(input.Complexity),
		Budget:      strings.TrimSpace(input.Budget),
		Timeline:    strings.TrimSpace(input.Timeline),
		Status:      store.ProjectDraft,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	return projectPayload(project), nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, input ProjectInput) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	name := firstNonBlank(strings.TrimSpace(input.Name), project.Name)
	projectType := firstNonBlank(strings.TrimSpace(input.ProjectType), project.ProjectType)
	complexity := firstNonBlank(strings.TrimSpace(input.Complexity), project.Complexity)
	budget := firstNonBlank(strings.TrimSpace(input.Budget), project.Budget)
	timeline := firstNonBlank(strings.TrimSpace(input.Timeline), project.Timeline)
	if err := s.store.UpdateProjectMeta(ctx, projectID, name, projectType, complexity, budget, timeline); err != nil {
		return nil, err
	}
	project, err = s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	return projectPayload(project), nil
}

func (s *Service) SubmitProject(ctx context.Context, projectID string) (map[string]any, error) {
	payload, err := s.setProjectStatus(ctx, projectID, store.ProjectSubmitted)
	if err != nil {
		return nil, err
	}
	s.notifySubmitted(ctx, projectID)
	return payload, nil
}

// notifySubmitted emails the client contact that their questionnaire was
// received. Failures are logged, never surfaced; submission already
// succeeded.
func (s *Service) notifySubmitted(ctx context.Context, projectID string) {
	if s.notifier == nil || !s.notifier.IsConfigured() {
		return
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return
	}
	client, err := s.store.GetClient(ctx, project.ClientID)
	if err != nil || client.ContactEmail == "" {
		return
	}
	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if err != nil {
		return
	}
	answers, err := s.answerMap(ctx, projectID)
	if err != nil {
		return
	}
	report := intake.Progress(questionnaire.Questions, answers, intake.CountAll)

	go func() {
		err := s.notifier.SendIntakeSubmitted(client.ContactEmail, email.SubmissionData{
			ContactName: client.ContactName,
			ClientName:  client.Name,
			ProjectName: project.Name,
			Answered:    report.Answered,
			Total:       report.Total,
		})
		if err != nil {
			log.Printf("email: intake confirmation failed: %v", err)
		}
	}()
}

func (s *Service) ReopenProject(ctx context.Context, projectID string) (map[string]any, error) {
	return s.setProjectStatus(ctx, projectID, store.ProjectDraft)
}

func (s *Service) setProjectStatus(ctx context.Context, projectID, status string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProjectStatus(ctx, projectID, status); err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	return projectPayload(project), nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.Status != store.ProjectDraft {
		return domainError(http.StatusForbidden, "READ_ONLY", "submitted projects cannot be deleted", nil)
	}
	if err := s.store.DeleteProjectWithAnswers(ctx, projectID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

// ---- intake ----

// writableProject loads a project and rejects writes once it is SUBMITTED.
// The gate runs before any row is touched, so a forbidden batch leaves
// answers untouched.
func (s *Service) writableProject(ctx context.Context, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if project.Status != store.ProjectDraft {
		return store.Project{}, domainError(http.StatusForbidden, "READ_ONLY", "submitted projects are read-only", nil)
	}
	return project, nil
}

func (s *Service) answerMap(ctx context.Context, projectID string) (map[string]string, error) {
	answers, err := s.store.ListAnswers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(answers))
	for _, a := range answers {
		m[a.QuestionID] = a.Value
	}
	return m, nil
}

// ApplyAnswerBatch persists one multi-field intake submission. Unknown
// question ids are skipped, never fatal; an empty encoded value deletes
// the stored row so unchecking every box clears the answer.
func (s *Service) ApplyAnswerBatch(ctx context.Context, projectID string, form url.Values) (BatchResult, error) {
	if _, err := s.writableProject(ctx, projectID); err != nil {
		return BatchResult{}, err
	}
	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	questions := make(map[string]store.Question, len(questionnaire.Questions))
	for _, q := range questionnaire.Questions {
		questions[q.ID] = q
	}

	batch := intake.ParseFields(form)
	result := BatchResult{Skipped: []string{}}
	for _, questionID := range batch.QuestionIDs() {
		question, ok := questions[questionID]
		if !ok {
			result.Skipped = append(result.Skipped, questionID+": unknown question")
			continue
		}
		value := intake.NewValue(batch.Values[questionID]...)
		if otherText, ok := batch.Other[questionID]; ok {
			value = intake.MergeOther(value, otherText, intake.MultiValued(question.Type))
		}
		encoded := intake.Encode(value)
		if encoded == "" {
			deleted, err := s.store.DeleteAnswer(ctx, projectID, questionID)
			if err != nil {
				return result, err
			}
			if deleted {
				result.Deleted++
			}
			continue
		}
		if err := s.store.UpsertAnswer(ctx, projectID, questionID, encoded); err != nil {
			return result, err
		}
		result.Applied++
	}
	return result, nil
}

// ApplyAnswer is the single-field autosave path. The value arrives already
// encoded by the caller's form layer (verbatim single value or JSON array).
func (s *Service) ApplyAnswer(ctx context.Context, projectID, questionID, value string) (BatchResult, error) {
	if _, err := s.writableProject(ctx, projectID); err != nil {
		return BatchResult{}, err
	}
	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	known := false
	for _, q := range questionnaire.Questions {
		if q.ID == questionID {
			known = true
			break
		}
	}
	if !known {
		return BatchResult{}, sql.ErrNoRows
	}

	result := BatchResult{Skipped: []string{}}
	if intake.Decode(value).IsEmpty() {
		deleted, err := s.store.DeleteAnswer(ctx, projectID, questionID)
		if err != nil {
			return result, err
		}
		if deleted {
			result.Deleted++
		}
		return result, nil
	}
	if err := s.store.UpsertAnswer(ctx, projectID, questionID, value); err != nil {
		return result, err
	}
	result.Applied++
	return result, nil
}

// IntakeForm returns the form payload: questions grouped by phase with the
// current value, companion text, and visibility, plus overall progress.
func (s *Service) IntakeForm(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if err != nil {
		return nil, err
	}
	answers, err := s.answerMap(ctx, projectID)
	if err != nil {
		return nil, err
	}

	type phaseGroup struct {
		index int
		items []map[string]any
	}
	groups := make(map[string]*phaseGroup)
	order := []string{}
	for _, q := range questionnaire.Questions {
		group, ok := groups[q.Phase]
		if !ok {
			group = &phaseGroup{index: len(order)}
			groups[q.Phase] = group
			order = append(order, q.Phase)
		}

		value := intake.Decode(answers[q.ID])
		otherText := ""
		selections := make([]string, 0, len(value.Values))
		for _, v := range value.Values {
			if text, ok := intake.SplitOther(v); ok && intake.HasOtherOption(q) {
				otherText = text
				selections = append(selections, intake.OtherOption)
				continue
			}
			selections = append(selections, v)
		}

		group.items = append(group.items, map[string]any{
			"questionId": q.ID,
			"label":      q.QuestionText,
			"type":       q.Type,
			"options":    q.Options,
			"values":     selections,
			"otherText":  otherText,
			"visible":    intake.Visible(q, answers),
		})
	}

	phases := make([]map[string]any, 0, len(order))
	for _, phase := range order {
		phases = append(phases, map[string]any{
			"phase":     phase,
			"title":     intake.PhaseTitle(phase),
			"questions": groups[phase].items,
		})
	}

	report := intake.Progress(questionnaire.Questions, answers, intake.CountAll)
	return map[string]any{
		"project":  projectPayload(project),
		"phases":   phases,
		"progress": progressPayload(report),
	}, nil
}

func (s *Service) Progress(ctx context.Context, projectID string, mode intake.CountMode) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if err != nil {
		return nil, err
	}
	answers, err := s.answerMap(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return progressPayload(intake.Progress(questionnaire.Questions, answers, mode)), nil
}

// ---- brief and proposals ----

func (s *Service) buildBriefHTML(ctx context.Context, projectID string) (store.Project, brief.Document, string, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, brief.Document{}, "", err
	}
	client, err := s.store.GetClient(ctx, project.ClientID)
	if err != nil {
		return store.Project{}, brief.Document{}, "", err
	}

	questionnaire, err := s.store.ActiveQuestionnaire(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return project, brief.Document{ProjectName: project.Name, ClientName: client.Name, ProjectType: project.ProjectType}, brief.EmptyHTML, nil
	}
	if err != nil {
		return store.Project{}, brief.Document{}, "", err
	}
	answers, err := s.answerMap(ctx, projectID)
	if err != nil {
		return store.Project{}, brief.Document{}, "", err
	}

	doc := brief.Build(project, client, questionnaire.Questions, answers)
	html, err := brief.RenderHTML(doc)
	if err != nil {
		return store.Project{}, brief.Document{}, "", err
	}
	return project, doc, html, nil
}

// BriefPreview assembles the live brief from current answers without
// persisting anything.
func (s *Service) BriefPreview(ctx context.Context, projectID string) (map[string]any, error) {
	project, doc, html, err := s.buildBriefHTML(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sections := make([]map[string]any, 0, len(doc.Sections))
	for _, section := range doc.Sections {
		items := make([]map[string]any, 0, len(section.Items))
		for _, item := range section.Items {
			items = append(items, map[string]any{"label": item.Label, "value": item.Value})
		}
		sections = append(sections, map[string]any{
			"phase": section.Phase,
			"title": section.Title,
			"items": items,
		})
	}
	return map[string]any{
		"projectId": project.ID,
		"sections":  sections,
		"html":      html,
	}, nil
}

// SaveProposal snapshots the current brief as the next proposal version.
// The store assigns max+1 under a unique constraint; a concurrent save
// loses the race, gets one retry, then surfaces a retryable conflict.
func (s *Service) SaveProposal(ctx context.Context, projectID string) (map[string]any, error) {
	_, _, html, err := s.buildBriefHTML(ctx, projectID)
	if err != nil {
		return nil, err
	}

	proposal, err := s.store.InsertProposal(ctx, util.NewID("prop"), projectID, html)
	if errors.Is(err, store.ErrVersionConflict) {
		proposal, err = s.store.InsertProposal(ctx, util.NewID("prop"), projectID, html)
	}
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, domainError(http.StatusConflict, "CONFLICT", "concurrent proposal save, retry", nil)
	}
	if err != nil {
		return nil, err
	}
	return proposalPayload(proposal, false), nil
}

func (s *Service) ListProposals(ctx context.Context, projectID string) (map[string]any, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	proposals, err := s.store.ListProposals(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(proposals))
	for _, proposal := range proposals {
		items = append(items, proposalPayload(proposal, false))
	}
	return map[string]any{"proposals": items}, nil
}

func (s *Service) GetProposal(ctx context.Context, projectID string, version int) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	return proposalPayload(proposal, true), nil
}

// ProposalPDF renders a stored snapshot to PDF. Rendered artifacts are
// cached in object storage when it is configured; a pinned version never
// changes, so the cache needs no invalidation.
func (s *Service) ProposalPDF(ctx context.Context, projectID string, version int) (*brief.Result, error) {
	proposal, err := s.store.GetProposal(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	filename := project.Name + " v" + strconv.Itoa(version)
	if s.artifacts != nil {
		data, ok, err := s.artifacts.Get(ctx, projectID, version)
		if err != nil {
			log.Printf("brief: artifact lookup failed: %v", err)
		} else if ok {
			return &brief.Result{Data: data, Filename: filename + ".pdf", MimeType: "application/pdf"}, nil
		}
	}

	result, err := brief.RenderPDF(proposal.HTML, filename)
	if err != nil {
		return nil, err
	}
	if s.artifacts != nil {
		if err := s.artifacts.Put(ctx, projectID, version, result.Data); err != nil {
			log.Printf("brief: artifact upload failed: %v", err)
		}
	}
	return result, nil
}

// ProposalDOCX renders a stored snapshot to DOCX. Unlike PDFs these are
// not cached; pandoc is cheap compared to a headless browser.
func (s *Service) ProposalDOCX(ctx context.Context, projectID string, version int) (*brief.Result, error) {
	proposal, err := s.store.GetProposal(ctx, projectID, version)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return brief.RenderDOCX(proposal.HTML, project.Name+" v"+strconv.Itoa(version))
}

// ---- payload helpers ----

func clientPayload(client store.Client) map[string]any {
	return map[string]any{
		"id":           client.ID,
		"name":         client.Name,
		"clientType":   client.ClientType,
		"industry":     client.Industry,
		"contactName":  client.ContactName,
		"contactEmail": client.ContactEmail,
	}
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":          project.ID,
		"clientId":    project.ClientID,
		"name":        project.Name,
		"projectType": project.ProjectType,
		"complexity":  project.Complexity,
		"budget":      project.Budget,
		"timeline":    project.Timeline,
		"status":      project.Status,
	}
}

func proposalPayload(proposal store.Proposal, includeHTML bool) map[string]any {
	payload := map[string]any{
		"id":        proposal.ID,
		"projectId": proposal.ProjectID,
		"version":   proposal.Version,
		"createdAt": proposal.CreatedAt,
	}
	if includeHTML {
		payload["html"] = proposal.HTML
	}
	return payload
}

func progressPayload(report intake.Report) map[string]any {
	phases := make([]map[string]any, 0, len(report.Phases))
	for _, phase := range report.Phases {
		phases = append(phases, map[string]any{
			"phase":    phase.Phase,
			"title":    intake.PhaseTitle(phase.Phase),
			"answered": phase.Answered,
			"total":    phase.Total,
		})
	}
	return map[string]any{
		"answered": report.Answered,
		"total":    report.Total,
		"percent":  report.Percent,
		"phases":   phases,
	}
}

func clientRecord(client store.Client) search.ClientRecord {
	return search.ClientRecord{
		ID:          client.ID,
		Name:        client.Name,
		Industry:    client.Industry,
		ContactName: client.ContactName,
	}
}

func projectRecord(project store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ID:          project.ID,
		Name:        project.Name,
		ProjectType: project.ProjectType,
		Status:      project.Status,
		ClientID:    project.ClientID,
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
