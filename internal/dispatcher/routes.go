package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"carebook/internal/availability"
	"carebook/internal/domain"
	"carebook/internal/models"
	"carebook/internal/service"
)

// Services are the engine components the routes call into.
type Services struct {
	Scheduling   *service.SchedulingService
	Ledger       domain.Ledger
	Availability *availability.Service
	Users        *service.UserService
	Notifier     *service.Notifier
	Messaging    *service.MessagingService
}

type amountBody struct {
	Amount    models.Money `json:"amount"`
	PayoutKey string       `json:"payoutKey"`
	Method    string       `json:"method"`
}

type careLogBody struct {
	Note string `json:"note"`
}

type dateBody struct {
	Date string `json:"date"`
}

type conversationBody struct {
	ParticipantID string `json:"participantId"`
}

type messageBody struct {
	Text string `json:"text"`
}

type ticketBody struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func registerRoutes(r *Router, svc Services) {
	h := &handlers{Services: svc}

	r.Handle(http.MethodPost, "/api/appointments", h.createAppointment)
	r.Handle(http.MethodGet, "/api/appointments", h.listAppointments)
	r.Handle(http.MethodGet, "/api/appointments/{id}", h.getAppointment)
	r.Handle(http.MethodPatch, "/api/appointments/{id}", h.editAppointment)
	r.Handle(http.MethodPost, "/api/appointments/{id}/cancel", h.cancelAppointment)
	r.Handle(http.MethodPost, "/api/appointments/{id}/check-in", h.checkIn)
	r.Handle(http.MethodPost, "/api/appointments/{id}/check-out", h.checkOut)
	r.Handle(http.MethodPost, "/api/appointments/{id}/care-logs", h.addCareLog)
	r.Handle(http.MethodGet, "/api/appointments/{id}/care-logs", h.careLogs)
	r.Handle(http.MethodGet, "/api/providers/{id}/conflicts", h.conflicts)

	r.Handle(http.MethodGet, "/api/users/{id}", h.getUser)
	r.Handle(http.MethodGet, "/api/users/{id}/wallet", h.wallet)
	r.Handle(http.MethodPost, "/api/users/{id}/wallet/withdraw", h.withdraw)
	r.Handle(http.MethodPost, "/api/users/{id}/wallet/add-credits", h.addCredits)
	r.Handle(http.MethodGet, "/api/users/{id}/wallet/reconcile", h.reconcile)
	r.Handle(http.MethodGet, "/api/users/{id}/availability", h.availability)
	r.Handle(http.MethodPost, "/api/users/{id}/availability/toggle", h.toggleAvailability)
	r.Handle(http.MethodGet, "/api/users/{id}/notifications", h.notifications)

	r.Handle(http.MethodPost, "/api/conversations", h.startConversation)
	r.Handle(http.MethodGet, "/api/conversations/{id}", h.getConversation)
	r.Handle(http.MethodDelete, "/api/conversations/{id}", h.deleteConversation)
	r.Handle(http.MethodPost, "/api/conversations/{id}/messages", h.sendMessage)

	r.Handle(http.MethodPost, "/api/tickets", h.createTicket)
}

type handlers struct {
	Services
}

func (h *handlers) createAppointment(ctx context.Context, req *Request, _ Params) (int, any, error) {
	var body service.CreateAppointmentRequest
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	if body.ClientID == "" {
		body.ClientID = req.UserID
	}
	res, err := h.Scheduling.CreateAppointment(ctx, body)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, res, nil
}

func (h *handlers) listAppointments(ctx context.Context, req *Request, _ Params) (int, any, error) {
	filter := service.AppointmentFilter{
		ProviderID: req.Query.Get("providerId"),
		ClientID:   req.Query.Get("clientId"),
		Date:       req.Query.Get("date"),
		Status:     req.Query.Get("status"),
	}
	appts, err := h.Scheduling.ListAppointments(ctx, filter)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"appointments": appts}, nil
}

func (h *handlers) getAppointment(ctx context.Context, _ *Request, p Params) (int, any, error) {
	a, err := h.Scheduling.GetAppointment(ctx, p["id"])
	return http.StatusOK, a, err
}

func (h *handlers) editAppointment(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body service.AppointmentUpdates
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	a, err := h.Scheduling.EditAppointment(ctx, p["id"], body)
	return http.StatusOK, a, err
}

func (h *handlers) cancelAppointment(ctx context.Context, req *Request, p Params) (int, any, error) {
	a, err := h.Scheduling.CancelAppointment(ctx, p["id"], req.UserID)
	return http.StatusOK, a, err
}

func (h *handlers) checkIn(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body service.Evidence
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	a, err := h.Scheduling.CheckIn(ctx, p["id"], body)
	return http.StatusOK, a, err
}

func (h *handlers) checkOut(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body service.Evidence
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	a, err := h.Scheduling.CheckOut(ctx, p["id"], body)
	return http.StatusOK, a, err
}

func (h *handlers) addCareLog(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body careLogBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	entry, err := h.Scheduling.AddCareLog(ctx, p["id"], req.UserID, body.Note)
	return http.StatusCreated, entry, err
}

func (h *handlers) careLogs(ctx context.Context, _ *Request, p Params) (int, any, error) {
	logs, err := h.Scheduling.CareLogs(ctx, p["id"])
	return http.StatusOK, map[string]any{"care_logs": logs}, err
}

func (h *handlers) conflicts(ctx context.Context, req *Request, p Params) (int, any, error) {
	w, err := h.Scheduling.Conflicts(ctx, p["id"], req.Query.Get("date"))
	return http.StatusOK, w, err
}

func (h *handlers) getUser(ctx context.Context, _ *Request, p Params) (int, any, error) {
	u, err := h.Users.GetUser(ctx, p["id"])
	return http.StatusOK, u, err
}

func (h *handlers) wallet(ctx context.Context, _ *Request, p Params) (int, any, error) {
	w, err := h.Ledger.Wallet(ctx, p["id"])
	return http.StatusOK, w, err
}

func (h *handlers) withdraw(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body amountBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	if strings.TrimSpace(body.PayoutKey) == "" {
		return 0, nil, fmt.Errorf("%w: payoutKey is required", domain.ErrValidation)
	}
	tx, err := h.Ledger.Withdraw(ctx, p["id"], body.Amount, body.PayoutKey)
	return http.StatusCreated, tx, err
}

func (h *handlers) addCredits(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body amountBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	if strings.TrimSpace(body.Method) == "" {
		return 0, nil, fmt.Errorf("%w: method is required", domain.ErrValidation)
	}
	tx, err := h.Ledger.AddCredits(ctx, p["id"], body.Amount, body.Method)
	return http.StatusCreated, tx, err
}

func (h *handlers) reconcile(ctx context.Context, _ *Request, p Params) (int, any, error) {
	if err := h.Ledger.Reconcile(ctx, p["id"]); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"user_id": p["id"], "reconciled": true}, nil
}

func (h *handlers) availability(ctx context.Context, _ *Request, p Params) (int, any, error) {
	dates, err := h.Availability.Dates(ctx, p["id"])
	return http.StatusOK, map[string]any{"provider_id": p["id"], "blocked_dates": dates}, err
}

func (h *handlers) toggleAvailability(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body dateBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	dates, err := h.Availability.Toggle(ctx, p["id"], body.Date)
	return http.StatusOK, map[string]any{"provider_id": p["id"], "blocked_dates": dates}, err
}

func (h *handlers) notifications(ctx context.Context, _ *Request, p Params) (int, any, error) {
	notes, err := h.Notifier.List(ctx, p["id"])
	return http.StatusOK, map[string]any{"notifications": notes}, err
}

func (h *handlers) startConversation(ctx context.Context, req *Request, _ Params) (int, any, error) {
	var body conversationBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	conv, err := h.Messaging.StartConversation(ctx, req.UserID, body.ParticipantID)
	return http.StatusCreated, conv, err
}

func (h *handlers) getConversation(ctx context.Context, _ *Request, p Params) (int, any, error) {
	conv, err := h.Messaging.GetConversation(ctx, p["id"])
	return http.StatusOK, conv, err
}

func (h *handlers) deleteConversation(ctx context.Context, req *Request, p Params) (int, any, error) {
	if err := h.Messaging.DeleteConversation(ctx, p["id"], req.UserID); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"deleted": p["id"]}, nil
}

func (h *handlers) sendMessage(ctx context.Context, req *Request, p Params) (int, any, error) {
	var body messageBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	msg, err := h.Messaging.SendMessage(ctx, p["id"], req.UserID, body.Text)
	return http.StatusCreated, msg, err
}

func (h *handlers) createTicket(ctx context.Context, req *Request, _ Params) (int, any, error) {
	var body ticketBody
	if err := decode(req, &body); err != nil {
		return 0, nil, err
	}
	ticket, err := h.Messaging.CreateTicket(ctx, req.UserID, body.Subject, body.Body)
	return http.StatusCreated, ticket, err
}
