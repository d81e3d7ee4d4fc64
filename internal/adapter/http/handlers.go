package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Strob0t/Hivemind/internal/domain"
	"github.com/Strob0t/Hivemind/internal/domain/audit"
	"github.com/Strob0t/Hivemind/internal/domain/decision"
	"github.com/Strob0t/Hivemind/internal/domain/participant"
	"github.com/Strob0t/Hivemind/internal/domain/workitem"
	"github.com/Strob0t/Hivemind/internal/service"
)

// Handlers bundles the services behind the REST API.
type Handlers struct {
	Items     *service.WorkItemService
	Registry  *service.RegistryService
	Router    *service.RouterService
	Consensus *service.ConsensusService
	Ingest    *service.IngestService
}

// --- Work items ---

type createWorkItemRequest struct {
	ID          string   `json:"id,omitempty"`
	Kind        string   `json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func (h *Handlers) CreateWorkItem(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createWorkItemRequest](w, r)
	if !ok {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !workitem.ValidKind(workitem.Kind(req.Kind)) {
		writeError(w, http.StatusBadRequest, "unknown kind")
		return
	}

	item := &workitem.WorkItem{
		ID:          req.ID,
		Kind:        workitem.Kind(req.Kind),
		Title:       req.Title,
		Description: req.Description,
		ParentID:    req.ParentID,
		DependsOn:   req.DependsOn,
		Tags:        req.Tags,
	}
	id, err := h.Items.Insert(r.Context(), item)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	created, err := h.Items.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) ListWorkItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := workitem.Filter{
		Kind:       workitem.Kind(q.Get("kind")),
		Status:     workitem.Status(q.Get("status")),
		ParentID:   q.Get("parent_id"),
		AssignedTo: q.Get("assigned_to"),
	}

	items, err := h.Items.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []workitem.WorkItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) ListReadyWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Items.ListReady(r.Context(), workitem.Kind(r.URL.Query().Get("kind")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []workitem.WorkItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) GetWorkItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Items.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type updateStatusRequest struct {
	Status     string   `json:"status"`
	AssignedTo *string  `json:"assigned_to,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

func (h *Handlers) UpdateWorkItemStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[updateStatusRequest](w, r)
	if !ok {
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	item, err := h.Items.UpdateStatus(r.Context(), urlParam(r, "id"), workitem.Status(req.Status), workitem.StatusUpdate{
		AssignedTo: req.AssignedTo,
		Confidence: req.Confidence,
		Reason:     req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) CancelWorkItem(w http.ResponseWriter, r *http.Request) {
	// The body is optional; a bare POST cancels with an empty reason.
	var req cancelRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Items.Cancel(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Handlers) RouteWorkItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.Router.Route(r.Context(), urlParam(r, "id"))
	if err != nil && res == nil {
		writeDomainError(w, err)
		return
	}
	// Blocked items and failed rounds are completed routing outcomes, not
	// transport errors; the result carries the mode and decision.
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) DecideWorkItem(w http.ResponseWriter, r *http.Request) {
	d, err := h.Consensus.Decide(r.Context(), urlParam(r, "id"))
	if err != nil && !errors.Is(err, domain.ErrNoConsensus) {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type forceDecisionRequest struct {
	Outcome       string `json:"outcome"`
	Justification string `json:"justification"`
}

func (h *Handlers) ForceDecision(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[forceDecisionRequest](w, r)
	if !ok {
		return
	}
	if req.Outcome == "" {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}
	if req.Justification == "" {
		writeError(w, http.StatusBadRequest, "justification is required")
		return
	}

	d, err := h.Consensus.ForceDecision(r.Context(), urlParam(r, "id"), req.Outcome, req.Justification)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handlers) GetDecisionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Items.GetDecisionHistory(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if history == nil {
		history = []decision.Decision{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handlers) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	trail, err := h.Items.GetAuditTrail(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if trail == nil {
		trail = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, trail)
}

// --- Participants ---

func (h *Handlers) RegisterParticipant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[participant.RegisterRequest](w, r)
	if !ok {
		return
	}

	p, err := h.Registry.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	if tags := r.URL.Query().Get("tags"); tags != "" {
		ranked, err := h.Registry.ListByCapability(r.Context(),
			strings.Split(tags, ","), participant.Role(r.URL.Query().Get("role")))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if ranked == nil {
			ranked = []participant.Ranked{}
		}
		writeJSON(w, http.StatusOK, ranked)
		return
	}

	participants, err := h.Registry.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if participants == nil {
		participants = []participant.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

func (h *Handlers) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registry.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeregisterParticipant(w http.ResponseWriter, r *http.Request) {
	if err := h.Registry.Deregister(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Planner ingestion ---

type submitPlanRequest struct {
	ParentID string                  `json:"parent_id,omitempty"`
	Items    []workitem.ProposedItem `json:"items"`
}

type submitPlanResponse struct {
	IDs []string `json:"ids"`
}

func (h *Handlers) SubmitPlan(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[submitPlanRequest](w, r)
	if !ok {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items is required")
		return
	}

	ids, err := h.Ingest.Submit(r.Context(), req.ParentID, req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitPlanResponse{IDs: ids})
}
