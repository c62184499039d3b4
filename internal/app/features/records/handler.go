// internal/app/features/records/handler.go
package records

import (
	"net/http"
	"time"

	recordstore "github.com/dalemusser/bandhub/internal/app/store/records"
	"github.com/dalemusser/bandhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/bandhub/internal/app/system/respond"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.uber.org/zap"
)

// Handler serves the group record collections under /groups/{groupID}.
// Access checks happen in the collections.
type Handler struct {
	Events   *recordstore.Events
	Finances *recordstore.Finances
	Merch    *recordstore.Merch
	Tasks    *recordstore.Tasks
	Chats    *recordstore.Chats
	Log      *zap.Logger
}

func NewHandler(events *recordstore.Events, finances *recordstore.Finances, merch *recordstore.Merch, tasks *recordstore.Tasks, chats *recordstore.Chats, logger *zap.Logger) *Handler {
	return &Handler{
		Events:   events,
		Finances: finances,
		Merch:    merch,
		Tasks:    tasks,
		Chats:    chats,
		Log:      logger,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Editable fields                                                             |
*─────────────────────────────────────────────────────────────────────────────*/

func applyEvent(dst *models.Event, src *models.Event) {
	dst.Title = htmlsanitize.PlainText(src.Title)
	dst.Location = htmlsanitize.PlainText(src.Location)
	dst.Notes = htmlsanitize.Sanitize(src.Notes)
	dst.StartsAt = src.StartsAt
	dst.EndsAt = src.EndsAt
}

func applyFinance(dst *models.FinanceRecord, src *models.FinanceRecord) {
	dst.Type = src.Type
	dst.Category = htmlsanitize.PlainText(src.Category)
	dst.AmountCents = src.AmountCents
	dst.Date = src.Date
	dst.Description = htmlsanitize.PlainText(src.Description)
}

func applyItem(dst *models.MerchItem, src *models.MerchItem) {
	dst.Name = htmlsanitize.PlainText(src.Name)
	dst.PriceCents = src.PriceCents
	dst.Stock = src.Stock
}

func applyTask(dst *models.Task, src *models.Task) {
	dst.Title = htmlsanitize.PlainText(src.Title)
	dst.Description = htmlsanitize.Sanitize(src.Description)
	dst.AssigneeID = src.AssigneeID
	dst.DueAt = src.DueAt
}

func applyChat(dst *models.Chat, src *models.Chat) {
	dst.Name = htmlsanitize.PlainText(src.Name)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Calendar                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeUpcoming handles GET /events/upcoming?from=RFC3339.
func (h *Handler) ServeUpcoming(w http.ResponseWriter, r *http.Request) {
	from := time.Now().UTC()
	if s := query.Get(r, "from"); s != "" {
		t, err := parseTime(s, false)
		if err != nil {
			respond.Fail(w, http.StatusBadRequest, respond.CodeValidation, "from: "+err.Error())
			return
		}
		from = t
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.Events.Upcoming(ctx, groupID(r), from)
	if err != nil {
		respond.Error(w, h.Log, "upcoming events", err)
		return
	}
	if out == nil {
		out = []models.Event{}
	}
	respond.JSON(w, http.StatusOK, out)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Finances                                                                    |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeFinances handles GET /finances with the filter query parameters
// (category, type, from, to, min, max, sort).
func (h *Handler) ServeFinances(w http.ResponseWriter, r *http.Request) {
	f, o, err := parseFinanceQuery(r)
	if err != nil {
		respond.Error(w, h.Log, "list finances", err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.Finances.Filtered(ctx, groupID(r), f, o)
	if err != nil {
		respond.Error(w, h.Log, "list finances", err)
		return
	}
	if out == nil {
		out = []models.FinanceRecord{}
	}
	respond.JSON(w, http.StatusOK, out)
}

// ServeSummary handles GET /finances/summary with the same filters.
func (h *Handler) ServeSummary(w http.ResponseWriter, r *http.Request) {
	f, _, err := parseFinanceQuery(r)
	if err != nil {
		respond.Error(w, h.Log, "finance summary", err)
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	s, err := h.Finances.Summary(ctx, groupID(r), f)
	if err != nil {
		respond.Error(w, h.Log, "finance summary", err)
		return
	}
	respond.JSON(w, http.StatusOK, s)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Merchandise                                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

type saleRequest struct {
	Quantity int `json:"quantity"`
}

type saleResponse struct {
	Sale models.MerchSale `json:"sale"`
	Item models.MerchItem `json:"item"`
}

// HandleSale handles POST /merch/{recordID}/sales.
func (h *Handler) HandleSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	sale, item, err := h.Merch.RecordSale(ctx, groupID(r), recordID(r), req.Quantity)
	if err != nil {
		respond.Error(w, h.Log, "record sale", err)
		return
	}
	respond.JSON(w, http.StatusCreated, saleResponse{Sale: sale, Item: item})
}

// ServeSales handles GET /merch/{recordID}/sales.
func (h *Handler) ServeSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	out, err := h.Merch.SalesOf(ctx, groupID(r), recordID(r))
	if err != nil {
		respond.Error(w, h.Log, "list sales", err)
		return
	}
	if out == nil {
		out = []models.MerchSale{}
	}
	respond.JSON(w, http.StatusOK, out)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Tasks                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type assignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// HandleComplete handles POST /tasks/{recordID}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	t, err := h.Tasks.Complete(ctx, groupID(r), recordID(r))
	if err != nil {
		respond.Error(w, h.Log, "complete task", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// HandleReopen handles POST /tasks/{recordID}/reopen.
func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := opCtx(r)
	defer cancel()

	t, err := h.Tasks.Reopen(ctx, groupID(r), recordID(r))
	if err != nil {
		respond.Error(w, h.Log, "reopen task", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

// HandleAssign handles PUT /tasks/{recordID}/assignee.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	t, err := h.Tasks.Assign(ctx, groupID(r), recordID(r), req.AssigneeID)
	if err != nil {
		respond.Error(w, h.Log, "assign task", err)
		return
	}
	respond.JSON(w, http.StatusOK, t)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Chats                                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

type openChatRequest struct {
	Name string `json:"name"`
}

type messageRequest struct {
	Body string `json:"body"`
}

// HandleOpenChat handles POST /chats.
func (h *Handler) HandleOpenChat(w http.ResponseWriter, r *http.Request) {
	var req openChatRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	c, err := h.Chats.Open(ctx, groupID(r), req.Name)
	if err != nil {
		respond.Error(w, h.Log, "open chat", err)
		return
	}
	respond.JSON(w, http.StatusCreated, c)
}

// HandlePost handles POST /chats/{recordID}/messages.
func (h *Handler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !respond.Decode(w, r, &req) {
		return
	}
	ctx, cancel := opCtx(r)
	defer cancel()

	msg, err := h.Chats.PostMessage(ctx, groupID(r), recordID(r), req.Body)
	if err != nil {
		respond.Error(w, h.Log, "post message", err)
		return
	}
	respond.JSON(w, http.StatusCreated, msg)
}
