package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"grocerylist/application/services"
	"grocerylist/domain/core/validators"
	"grocerylist/domain/core/valueobjects"
	domainservices "grocerylist/domain/services"
	"grocerylist/infrastructure/notify"
	pkgerrors "grocerylist/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// NotificationFeed exposes the notifications shown next to the list
type NotificationFeed interface {
	Recent() []notify.Entry
	Clear()
}

// GroceryHandler handles grocery list HTTP requests
type GroceryHandler struct {
	service *services.GroceryService
	feed    NotificationFeed
	errors  *pkgerrors.ErrorHandler
	logger  *zap.Logger
}

// NewGroceryHandler creates a new grocery handler
func NewGroceryHandler(
	service *services.GroceryService,
	feed NotificationFeed,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *GroceryHandler {
	return &GroceryHandler{
		service: service,
		feed:    feed,
		errors:  errorHandler,
		logger:  logger,
	}
}

// ListResponse is the list screen payload
type ListResponse struct {
	services.GroupedList
	Notifications []notify.Entry `json:"notifications"`
}

// ValidateResponse reports whether the form may be submitted
type ValidateResponse struct {
	Valid  bool              `json:"valid"`
	Errors map[string]string `json:"errors"`
}

// ConfirmationResponse asks the caller to repeat the request with confirm=true
type ConfirmationResponse struct {
	Error   bool                  `json:"error"`
	Type    string                `json:"type"`
	Message string                `json:"message"`
	Prompt  services.DeletePrompt `json:"prompt"`
}

// ListItems handles GET /items
func (h *GroceryHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.listResponse(list))
}

// ValidateItem handles POST /items/validate
func (h *GroceryHandler) ValidateItem(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}

	_, fieldErrs := h.service.Validate(form)
	resp := ValidateResponse{Valid: len(fieldErrs) == 0, Errors: map[string]string{}}
	for field, msg := range fieldErrs {
		resp.Errors[field] = msg
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// CreateItem handles POST /items
func (h *GroceryHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}

	result, err := h.service.AddItem(r.Context(), form)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Action != domainservices.ActionInsert {
		status = http.StatusOK
	}
	h.respondJSON(w, status, result)
}

// UpdateItem handles PATCH /items/{id}
func (h *GroceryHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	form, ok := h.decodeForm(w, r)
	if !ok {
		return
	}

	item, err := h.service.EditItem(r.Context(), id, form)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, item)
}

// ToggleItem handles POST /items/{id}/toggle
func (h *GroceryHandler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	result, err := h.service.ToggleBought(r.Context(), id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// DeleteItem handles DELETE /items/{id}. Without confirm=true nothing is
// deleted and the confirmation prompt is returned.
func (h *GroceryHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		prompt, err := h.service.DeletePrompt(r.Context(), id)
		if err != nil {
			h.errors.Handle(w, r, err)
			return
		}
		h.respondJSON(w, http.StatusPreconditionRequired, ConfirmationResponse{
			Error:   true,
			Type:    string(pkgerrors.ErrorTypeValidation),
			Message: "Deletion must be confirmed with confirm=true",
			Prompt:  prompt,
		})
		return
	}

	if err := h.service.DeleteItem(r.Context(), id); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestartSession handles POST /session/restart
func (h *GroceryHandler) RestartSession(w http.ResponseWriter, r *http.Request) {
	if h.feed != nil {
		h.feed.Clear()
	}
	list, err := h.service.Restart(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.listResponse(list))
}

func (h *GroceryHandler) listResponse(list services.GroupedList) ListResponse {
	resp := ListResponse{GroupedList: list, Notifications: []notify.Entry{}}
	if h.feed != nil {
		resp.Notifications = h.feed.Recent()
	}
	return resp
}

func (h *GroceryHandler) decodeForm(w http.ResponseWriter, r *http.Request) (validators.ItemForm, bool) {
	var form validators.ItemForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return form, false
	}
	return form, true
}

func (h *GroceryHandler) itemID(w http.ResponseWriter, r *http.Request) (valueobjects.ItemID, bool) {
	id, err := valueobjects.NewItemIDFromString(chi.URLParam(r, "id"))
	if err != nil {
		h.errors.HandleStatus(w, r, http.StatusBadRequest, "Invalid item id")
		return valueobjects.ItemID{}, false
	}
	return id, true
}

func (h *GroceryHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
