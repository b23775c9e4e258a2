package handler

import (
	"net/http"

	"timetracker/internal/service"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	clients := router.Group("/clients")
	{
		clients.GET("", h.ListClients)
		clients.POST("", h.CreateClient)
		clients.PUT("/:id", h.UpdateClient)
		clients.DELETE("/:id", h.DeleteClient)
	}
	projects := router.Group("/projects")
	{
		projects.GET("", h.ListProjects)
		projects.POST("", h.CreateProject)
		projects.GET("/:id", h.GetProject)
		projects.PUT("/:id", h.UpdateProject)
		projects.DELETE("/:id", h.DeleteProject)
	}
}

// ListClients returns every client
// @Summary      List clients
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.ClientResponse}
// @Router       /api/clients [get]
func (h *CatalogHandler) ListClients(c *gin.Context) {
	clients, err := h.catalogService.ListClients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, clients))
}

// CreateClient adds a client (admin)
// @Summary      Create client
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/clients [post]
func (h *CatalogHandler) CreateClient(c *gin.Context) {
	var req service.ClientRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := h.catalogService.CreateClient(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, client))
}

// UpdateClient renames a client (admin)
// @Summary      Update client
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Client ID"
// @Param        payload  body      service.ClientRequest  true  "Client"
// @Success      200      {object}  response.Response{data=service.ClientResponse}
// @Router       /api/clients/{id} [put]
func (h *CatalogHandler) UpdateClient(c *gin.Context) {
	var req service.ClientRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := h.catalogService.UpdateClient(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, client))
}

// DeleteClient removes a client without projects (admin)
// @Summary      Delete client
// @Tags         catalog
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/clients/{id} [delete]
func (h *CatalogHandler) DeleteClient(c *gin.Context) {
	if err := h.catalogService.DeleteClient(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Client deleted successfully"))
}

// ListProjects returns projects, optionally for one client
// @Summary      List projects
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        client_id  query     string  false  "Client ID"
// @Success      200        {object}  response.Response{data=[]service.ProjectResponse}
// @Router       /api/projects [get]
func (h *CatalogHandler) ListProjects(c *gin.Context) {
	projects, err := h.catalogService.ListProjects(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, projects))
}

// GetProject returns a single project
// @Summary      Get project
// @Tags         catalog
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Project ID"
// @Success      200  {object}  response.Response{data=service.ProjectResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/projects/{id} [get]
func (h *CatalogHandler) GetProject(c *gin.Context) {
	project, err := h.catalogService.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, project))
}

// CreateProject adds a project under a client (admin)
// @Summary      Create project
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ProjectRequest  true  "Project"
// @Success      201      {object}  response.Response{data=service.ProjectResponse}
// @Router       /api/projects [post]
func (h *CatalogHandler) CreateProject(c *gin.Context) {
	var req service.ProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.catalogService.CreateProject(c.Request.Context(), actorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, project))
}

// UpdateProject renames or moves a project (admin)
// @Summary      Update project
// @Tags         catalog
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                  true  "Project ID"
// @Param        payload  body      service.ProjectRequest  true  "Project"
// @Success      200      {object}  response.Response{data=service.ProjectResponse}
// @Router       /api/projects/{id} [put]
func (h *CatalogHandler) UpdateProject(c *gin.Context) {
	var req service.ProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.catalogService.UpdateProject(c.Request.Context(), actorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, project))
}

// DeleteProject removes a project without time entries (admin)
// @Summary      Delete project
// @Tags         catalog
// @Security     BearerAuth
// @Param        id   path      string  true  "Project ID"
// @Success      200  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/projects/{id} [delete]
func (h *CatalogHandler) DeleteProject(c *gin.Context) {
	if err := h.catalogService.DeleteProject(c.Request.Context(), actorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, "Project deleted successfully"))
}
