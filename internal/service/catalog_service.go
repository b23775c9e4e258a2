package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"timetracker/internal/model"
	"timetracker/internal/repository"
	"timetracker/internal/validation"
	"timetracker/pkg/apperror"

	"github.com/google/uuid"
)

// DTOs
type ClientRequest struct {
	Name string `json:"name" binding:"required"`
}

type ProjectRequest struct {
	ClientID string `json:"client_id" binding:"required"`
	Name     string `json:"name" binding:"required"`
}

type ClientResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type ProjectResponse struct {
	ID         string `json:"id"`
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	Name       string `json:"name"`
	CreatedAt  string `json:"created_at"`
}

// CatalogService manages clients and the projects under them. Reads are open
// to every user; changes are admin only.
type CatalogService interface {
	CreateClient(ctx context.Context, actorID string, req ClientRequest) (*ClientResponse, error)
	ListClients(ctx context.Context) ([]ClientResponse, error)
	UpdateClient(ctx context.Context, actorID, id string, req ClientRequest) (*ClientResponse, error)
	DeleteClient(ctx context.Context, actorID, id string) error

	CreateProject(ctx context.Context, actorID string, req ProjectRequest) (*ProjectResponse, error)
	GetProject(ctx context.Context, id string) (*ProjectResponse, error)
	ListProjects(ctx context.Context, clientID string) ([]ProjectResponse, error)
	UpdateProject(ctx context.Context, actorID, id string, req ProjectRequest) (*ProjectResponse, error)
	DeleteProject(ctx context.Context, actorID, id string) error
}

type catalogService struct {
	clients  repository.ClientRepository
	projects repository.ProjectRepository
	entries  repository.TimeEntryRepository
	audit    repository.AuditRepository
	tx       repository.TransactionManager
	actors   actorResolver
	logger   *slog.Logger
}

func NewCatalogService(
	clients repository.ClientRepository,
	projects repository.ProjectRepository,
	entries repository.TimeEntryRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	tx repository.TransactionManager,
	logger *slog.Logger,
) CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &catalogService{
		clients:  clients,
		projects: projects,
		entries:  entries,
		audit:    audit,
		tx:       tx,
		actors:   actorResolver{users: users},
		logger:   logger,
	}
}

func (s *catalogService) CreateClient(ctx context.Context, actorID string, req ClientRequest) (*ClientResponse, error) {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	name, err := cleanName(req.Name, "client name")
	if err != nil {
		return nil, err
	}

	client := &model.Client{Name: name}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.clients.Create(txCtx, client); err != nil {
			return err
		}
		return s.record(txCtx, actor, model.ActionCreateClient, client.ID, name)
	})
	if err != nil {
		return nil, s.fail(err, "client")
	}
	res := toClientResponse(client)
	return &res, nil
}

func (s *catalogService) ListClients(ctx context.Context) ([]ClientResponse, error) {
	clients, err := s.clients.List(ctx)
	if err != nil {
		return nil, s.fail(err, "client")
	}
	res := make([]ClientResponse, 0, len(clients))
	for i := range clients {
		res = append(res, toClientResponse(&clients[i]))
	}
	return res, nil
}

func (s *catalogService) UpdateClient(ctx context.Context, actorID, id string, req ClientRequest) (*ClientResponse, error) {
	if _, err := s.admin(ctx, actorID); err != nil {
		return nil, err
	}
	clientID, err := parseID(id, "client id")
	if err != nil {
		return nil, err
	}
	name, err := cleanName(req.Name, "client name")
	if err != nil {
		return nil, err
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, s.fail(err, "client")
	}
	client.Name = name
	if err := s.clients.Update(ctx, client); err != nil {
		return nil, s.fail(err, "client")
	}
	res := toClientResponse(client)
	return &res, nil
}

// DeleteClient refuses while the client still has projects. The check runs
// before the delete is issued.
func (s *catalogService) DeleteClient(ctx context.Context, actorID, id string) error {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return err
	}
	clientID, err := parseID(id, "client id")
	if err != nil {
		return err
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return s.fail(err, "client")
	}

	return s.fail(s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		count, err := s.clients.CountProjects(txCtx, clientID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperror.Conflict("client still has " + strconv.FormatInt(count, 10) + " project(s)")
		}
		if err := s.clients.Delete(txCtx, clientID); err != nil {
			return err
		}
		return s.record(txCtx, actor, model.ActionDeleteClient, clientID, client.Name)
	}), "client")
}

func (s *catalogService) CreateProject(ctx context.Context, actorID string, req ProjectRequest) (*ProjectResponse, error) {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return nil, err
	}
	name, err := cleanName(req.Name, "project name")
	if err != nil {
		return nil, err
	}
	client, err := s.existingClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	project := &model.Project{ClientID: client.ID, Name: name}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.projects.Create(txCtx, project); err != nil {
			return err
		}
		return s.record(txCtx, actor, model.ActionCreateProject, project.ID, name)
	})
	if err != nil {
		return nil, s.fail(err, "project")
	}
	project.Client = client
	res := toProjectResponse(project)
	return &res, nil
}

func (s *catalogService) GetProject(ctx context.Context, id string) (*ProjectResponse, error) {
	projectID, err := parseID(id, "project id")
	if err != nil {
		return nil, err
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, s.fail(err, "project")
	}
	res := toProjectResponse(project)
	return &res, nil
}

func (s *catalogService) ListProjects(ctx context.Context, clientID string) ([]ProjectResponse, error) {
	var filter *uuid.UUID
	if clientID != "" {
		id, err := parseID(clientID, "client id")
		if err != nil {
			return nil, err
		}
		filter = &id
	}
	projects, err := s.projects.List(ctx, filter)
	if err != nil {
		return nil, s.fail(err, "project")
	}
	res := make([]ProjectResponse, 0, len(projects))
	for i := range projects {
		res = append(res, toProjectResponse(&projects[i]))
	}
	return res, nil
}

func (s *catalogService) UpdateProject(ctx context.Context, actorID, id string, req ProjectRequest) (*ProjectResponse, error) {
	if _, err := s.admin(ctx, actorID); err != nil {
		return nil, err
	}
	projectID, err := parseID(id, "project id")
	if err != nil {
		return nil, err
	}
	name, err := cleanName(req.Name, "project name")
	if err != nil {
		return nil, err
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, s.fail(err, "project")
	}
	if req.ClientID != project.ClientID.String() {
		client, err := s.existingClient(ctx, req.ClientID)
		if err != nil {
			return nil, err
		}
		project.ClientID = client.ID
		project.Client = client
	}
	project.Name = name
	if err := s.projects.Update(ctx, project); err != nil {
		return nil, s.fail(err, "project")
	}
	res := toProjectResponse(project)
	return &res, nil
}

// DeleteProject refuses while time entries reference the project.
func (s *catalogService) DeleteProject(ctx context.Context, actorID, id string) error {
	actor, err := s.admin(ctx, actorID)
	if err != nil {
		return err
	}
	projectID, err := parseID(id, "project id")
	if err != nil {
		return err
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return s.fail(err, "project")
	}

	return s.fail(s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		count, err := s.entries.CountByProject(txCtx, projectID)
		if err != nil {
			return err
		}
		if count > 0 {
			return apperror.Conflict("project still has " + strconv.FormatInt(count, 10) + " time entries")
		}
		if err := s.projects.Delete(txCtx, projectID); err != nil {
			return err
		}
		return s.record(txCtx, actor, model.ActionDeleteProject, projectID, project.Name)
	}), "project")
}

func (s *catalogService) admin(ctx context.Context, actorID string) (Actor, error) {
	actor, err := s.actors.resolve(ctx, actorID)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		return Actor{}, apperror.PermissionDenied("only admins can manage clients and projects")
	}
	return actor, nil
}

func (s *catalogService) existingClient(ctx context.Context, raw string) (*model.Client, error) {
	clientID, err := parseID(raw, "client id")
	if err != nil {
		return nil, err
	}
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperror.Validation("client does not exist")
		}
		return nil, s.fail(err, "client")
	}
	return client, nil
}

func (s *catalogService) record(ctx context.Context, actor Actor, action string, id uuid.UUID, name string) error {
	payload, _ := json.Marshal(map[string]string{"name": name})
	return s.audit.Log(ctx, &model.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		EntityID:   id.String(),
		EntityName: name,
		Details:    string(payload),
	})
}

// fail passes typed errors through and translates store errors.
func (s *catalogService) fail(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	err = storeErr(err, what)
	logUpstream(s.logger, err, what+" store failure")
	return err
}

func cleanName(raw, field string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperror.Validation(field + " cannot be empty")
	}
	if len([]rune(name)) > 255 {
		return "", apperror.Validation(field + " is too long (max 255 characters)")
	}
	if validation.ContainsInjection(name) {
		return "", apperror.Validation(field + " contains disallowed content")
	}
	return name, nil
}

func toClientResponse(c *model.Client) ClientResponse {
	return ClientResponse{
		ID:        c.ID.String(),
		Name:      c.Name,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toProjectResponse(p *model.Project) ProjectResponse {
	res := ProjectResponse{
		ID:        p.ID.String(),
		ClientID:  p.ClientID.String(),
		Name:      p.Name,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
	if p.Client != nil {
		res.ClientName = p.Client.Name
	}
	return res
}
