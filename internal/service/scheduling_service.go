package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"carebook/internal/availability"
	"carebook/internal/config"
	"carebook/internal/conflict"
	"carebook/internal/domain"
	"carebook/internal/events"
	"carebook/internal/models"
	"carebook/internal/recurrence"
	"carebook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CreateAppointmentRequest is a booking as submitted by a client.
type CreateAppointmentRequest struct {
	ProviderID  string           `json:"providerId"`
	ClientID    string           `json:"clientId"`
	ServiceName string           `json:"serviceName"`
	Date        string           `json:"date"`
	Time        string           `json:"time"`
	Recurrence  string           `json:"recurrence,omitempty"`
	EndDate     string           `json:"endDate,omitempty"`
	Location    *models.GeoPoint `json:"location,omitempty"`
	Notes       string           `json:"notes,omitempty"`
}

// CreateAppointmentResult carries the persisted batch and any advisory
// overlaps on the provider's affected days.
type CreateAppointmentResult struct {
	SeriesID     string                   `json:"seriesId,omitempty"`
	Appointments []*models.Appointment    `json:"appointments"`
	Warnings     []models.ConflictWarning `json:"warnings,omitempty"`
}

// AppointmentUpdates lists the editable fields; nil leaves a field alone.
type AppointmentUpdates struct {
	ServiceName *string `json:"serviceName,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Evidence is what the caregiver submits at check-in or check-out.
type Evidence struct {
	Location models.GeoPoint `json:"location"`
	PhotoRef string          `json:"photoRef,omitempty"`
}

type AppointmentFilter struct {
	ProviderID string
	ClientID   string
	Date       string
	Status     string
}

func (f AppointmentFilter) match(a *models.Appointment) bool {
	return (f.ProviderID == "" || a.ProviderID == f.ProviderID) &&
		(f.ClientID == "" || a.ClientID == f.ClientID) &&
		(f.Date == "" || a.Date == f.Date) &&
		(f.Status == "" || a.Status == f.Status)
}

type SchedulingService struct {
	appointments *repository.Collection[models.Appointment]
	users        *repository.Collection[models.User]
	careLogs     *repository.Collection[models.CareLog]
	expander     recurrence.Expander
	ledger       domain.Ledger
	verifier     domain.LocationVerifier
	eventBus     domain.EventPublisher
	jobs         domain.JobScheduler
	feeBP        int64
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewSchedulingService(
	store domain.Store,
	ledger domain.Ledger,
	verifier domain.LocationVerifier,
	eventBus domain.EventPublisher,
	jobs domain.JobScheduler,
	cfg config.SchedulingConfig,
	logger *zerolog.Logger,
) *SchedulingService {
	feeBP := cfg.FeeBasisPoints
	if feeBP <= 0 {
		feeBP = models.DefaultFeeBasisPoints
	}
	return &SchedulingService{
		appointments: repository.NewCollection[models.Appointment](store, models.CollectionAppointments).WithAttempts(cfg.WriteRetries),
		users:        repository.NewCollection[models.User](store, models.CollectionUsers).WithAttempts(cfg.WriteRetries),
		careLogs:     repository.NewCollection[models.CareLog](store, models.CollectionCareLogs),
		expander:     recurrence.NewExpander(cfg.MaxSeriesSessions),
		ledger:       ledger,
		verifier:     verifier,
		eventBus:     eventBus,
		jobs:         jobs,
		feeBP:        feeBP,
		loc:          cfg.Location(),
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock replaces the time source. "Today" is always taken in the
// configured time zone.
func (s *SchedulingService) WithClock(now func() time.Time) *SchedulingService {
	s.now = now
	return s
}

func (s *SchedulingService) today() string {
	return s.now().In(s.loc).Format(models.DateLayout)
}

func validTime(t string) bool {
	if _, _, ok := conflict.ParseRange(t); ok {
		return true
	}
	_, ok := models.ParseClock(strings.TrimSpace(t))
	return ok
}

// provider loads providerID and insists it is a caregiver.
func (s *SchedulingService) provider(ctx context.Context, providerID string) (*models.User, *models.CaregiverProfile, error) {
	u, err := s.users.Get(ctx, providerID)
	if err != nil {
		return nil, nil, fmt.Errorf("provider %s: %w", providerID, err)
	}
	switch p := u.Role.(type) {
	case *models.CaregiverProfile:
		return u, p, nil
	case *models.ClientProfile, *models.AdminProfile:
		return nil, nil, fmt.Errorf("%w: user %s is a %s, not a caregiver", domain.ErrValidation, providerID, models.RoleName(u.Role))
	default:
		return nil, nil, fmt.Errorf("%w: user %s has no role", domain.ErrValidation, providerID)
	}
}

func (s *SchedulingService) price(profile *models.CaregiverProfile, serviceName string) (cost, fee, earnings models.Money, err error) {
	offering, ok := profile.Service(serviceName)
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: provider does not offer %q", domain.ErrValidation, serviceName)
	}
	cost = offering.Price
	fee = cost.Percent(s.feeBP)
	return cost, fee, cost - fee, nil
}

// target picks the check-in reference point: the request's location, or the
// client's profile location.
func (s *SchedulingService) target(ctx context.Context, req CreateAppointmentRequest) (models.GeoPoint, error) {
	if req.Location != nil {
		return *req.Location, nil
	}
	client, err := s.users.Get(ctx, req.ClientID)
	if err != nil {
		return models.GeoPoint{}, fmt.Errorf("client %s: %w", req.ClientID, err)
	}
	switch p := client.Role.(type) {
	case *models.ClientProfile:
		if p.Location != (models.GeoPoint{}) {
			return p.Location, nil
		}
	case *models.CaregiverProfile, *models.AdminProfile:
	}
	return models.GeoPoint{}, fmt.Errorf("%w: no location given and client %s has none on file", domain.ErrValidation, req.ClientID)
}

func (s *SchedulingService) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (*CreateAppointmentResult, error) {
	switch {
	case req.ProviderID == "":
		return nil, fmt.Errorf("%w: providerId is required", domain.ErrValidation)
	case req.ClientID == "":
		return nil, fmt.Errorf("%w: clientId is required", domain.ErrValidation)
	case strings.TrimSpace(req.ServiceName) == "":
		return nil, fmt.Errorf("%w: serviceName is required", domain.ErrValidation)
	case req.Date == "":
		return nil, fmt.Errorf("%w: date is required", domain.ErrValidation)
	case !validTime(req.Time):
		return nil, fmt.Errorf("%w: time %q must be HH:MM or HH:MM-HH:MM", domain.ErrValidation, req.Time)
	}

	_, profile, err := s.provider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	cost, fee, earnings, err := s.price(profile, req.ServiceName)
	if err != nil {
		return nil, err
	}
	target, err := s.target(ctx, req)
	if err != nil {
		return nil, err
	}

	cal := availability.FromDates(req.ProviderID, profile.BlockedDates)
	dates, err := s.expander.Expand(req.Date, req.Recurrence, req.EndDate, req.ProviderID, cal)
	if err != nil {
		return nil, err
	}

	var seriesID string
	if len(dates) > 1 {
		seriesID = uuid.NewString()
	}

	now := s.now().UTC()
	batch := make(map[string]*models.Appointment, len(dates))
	created := make([]*models.Appointment, 0, len(dates))
	for _, date := range dates {
		a := &models.Appointment{
			ID:          uuid.NewString(),
			ProviderID:  req.ProviderID,
			ClientID:    req.ClientID,
			Date:        date,
			Time:        strings.TrimSpace(req.Time),
			ServiceName: req.ServiceName,
			Cost:        cost,
			Fee:         fee,
			Earnings:    earnings,
			Status:      models.StatusConfirmed,
			SeriesID:    seriesID,
			Target:      target,
			Notes:       req.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		batch[a.ID] = a
		created = append(created, a)
	}

	if err := s.appointments.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("persist appointments: %w", err)
	}

	s.logger.Info().
		Str("provider_id", req.ProviderID).
		Str("client_id", req.ClientID).
		Str("series_id", seriesID).
		Int("sessions", len(created)).
		Str("cost", cost.String()).
		Msg("appointments created")

	s.publishBooking(created, seriesID)

	return &CreateAppointmentResult{
		SeriesID:     seriesID,
		Appointments: created,
		Warnings:     s.warnings(ctx, req.ProviderID, dates),
	}, nil
}

// warnings collects conflict warnings for the given days. Failures are logged
// and yield no warning; they never fail a booking.
func (s *SchedulingService) warnings(ctx context.Context, providerID string, dates []string) []models.ConflictWarning {
	days := make(map[string]bool, len(dates))
	for _, d := range dates {
		days[d] = true
	}
	appts, err := s.appointments.List(ctx, func(a *models.Appointment) bool {
		return a.ProviderID == providerID && days[a.Date]
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("provider_id", providerID).Msg("conflict check skipped")
		return nil
	}

	var out []models.ConflictWarning
	for _, d := range dates {
		if w := conflict.Warning(appts, providerID, d); w != nil {
			out = append(out, *w)
		}
	}
	return out
}

// Conflicts reports overlapping confirmed appointments for one provider day.
func (s *SchedulingService) Conflicts(ctx context.Context, providerID, date string) (*models.ConflictWarning, error) {
	if !models.ValidDay(date) {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrValidation, date)
	}
	appts, err := s.appointments.List(ctx, func(a *models.Appointment) bool {
		return a.ProviderID == providerID && a.Date == date
	})
	if err != nil {
		return nil, err
	}
	return &models.ConflictWarning{
		ProviderID:     providerID,
		Date:           date,
		AppointmentIDs: conflict.Detect(conflict.SameDay(appts, providerID, date)),
	}, nil
}

func (s *SchedulingService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	return a, nil
}

// ListAppointments returns matching appointments ordered by date and time.
func (s *SchedulingService) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]*models.Appointment, error) {
	appts, err := s.appointments.List(ctx, filter.match)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return appts[i].Time < appts[j].Time
	})
	return appts, nil
}

// EditAppointment changes a confirmed future appointment. Picking a service
// re-prices the appointment at that service's current price. Other members
// of the series are left alone.
func (s *SchedulingService) EditAppointment(ctx context.Context, id string, upd AppointmentUpdates) (*models.Appointment, error) {
	if upd.Date != nil && !models.ValidDay(*upd.Date) {
		return nil, fmt.Errorf("%w: date %q is not YYYY-MM-DD", domain.ErrValidation, *upd.Date)
	}
	if upd.Time != nil && !validTime(*upd.Time) {
		return nil, fmt.Errorf("%w: time %q must be HH:MM or HH:MM-HH:MM", domain.ErrValidation, *upd.Time)
	}
	if upd.ServiceName != nil && strings.TrimSpace(*upd.ServiceName) == "" {
		return nil, fmt.Errorf("%w: serviceName cannot be empty", domain.ErrValidation)
	}

	var profile *models.CaregiverProfile
	updated, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		if a.Status != models.StatusConfirmed {
			return fmt.Errorf("%w: cannot edit a %s appointment", domain.ErrStateTransition, a.Status)
		}
		if err := s.requireFuture(a); err != nil {
			return err
		}

		if upd.ServiceName != nil {
			if profile == nil {
				_, p, err := s.provider(ctx, a.ProviderID)
				if err != nil {
					return err
				}
				profile = p
			}
			cost, fee, earnings, err := s.price(profile, *upd.ServiceName)
			if err != nil {
				return err
			}
			a.ServiceName = *upd.ServiceName
			a.Cost, a.Fee, a.Earnings = cost, fee, earnings
		}
		if upd.Date != nil {
			a.Date = *upd.Date
		}
		if upd.Time != nil {
			a.Time = strings.TrimSpace(*upd.Time)
		}
		if upd.Notes != nil {
			a.Notes = *upd.Notes
		}
		if upd.Date != nil || upd.Time != nil {
			if err := s.requireFuture(a); err != nil {
				return err
			}
		}
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("edit appointment %s: %w", id, err)
	}

	s.logger.Info().Str("appointment_id", id).Msg("appointment edited")
	s.publishAppointment(events.EventAppointmentUpdated, updated, "")
	return updated, nil
}

func (s *SchedulingService) requireFuture(a *models.Appointment) error {
	start, err := a.StartsAt(s.loc)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !start.After(s.now()) {
		return fmt.Errorf("%w: appointment on %s %s has already started", domain.ErrStateTransition, a.Date, a.Time)
	}
	return nil
}

// CancelAppointment moves a confirmed appointment to cancelled. Cancelling
// twice is a no-op; completed appointments cannot be cancelled.
func (s *SchedulingService) CancelAppointment(ctx context.Context, id, actorID string) (*models.Appointment, error) {
	changed := false
	a, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		switch a.Status {
		case models.StatusCancelled:
			return repository.ErrSkipWrite
		case models.StatusCompleted:
			return fmt.Errorf("%w: appointment %s is already completed", domain.ErrStateTransition, id)
		}
		a.Status = models.StatusCancelled
		a.UpdatedAt = s.now().UTC()
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel appointment %s: %w", id, err)
	}

	if changed {
		s.logger.Info().Str("appointment_id", id).Str("actor_id", actorID).Msg("appointment cancelled")
		s.publishAppointment(events.EventAppointmentCancelled, a, actorID)
	}
	return a, nil
}

// CheckIn records arrival evidence. It is only accepted on the appointment's
// own day and within the verifier's radius of the target.
func (s *SchedulingService) CheckIn(ctx context.Context, id string, ev Evidence) (*models.Appointment, error) {
	a, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		if a.Status != models.StatusConfirmed {
			return fmt.Errorf("%w: cannot check in to a %s appointment", domain.ErrStateTransition, a.Status)
		}
		if a.CheckIn != nil {
			return fmt.Errorf("%w: appointment %s already checked in", domain.ErrStateTransition, id)
		}
		if today := s.today(); a.Date != today {
			return fmt.Errorf("%w: appointment is on %s, today is %s", domain.ErrStateTransition, a.Date, today)
		}

		distance, verified, err := s.verifier.Verify(a.Target, ev.Location)
		if err != nil {
			return err
		}
		if !verified {
			return fmt.Errorf("%w: %.0fm from the appointment location", domain.ErrLocationMismatch, distance)
		}

		now := s.now().UTC()
		a.CheckIn = &models.AppointmentAction{
			Timestamp:      now,
			Location:       ev.Location,
			PhotoRef:       ev.PhotoRef,
			Verified:       true,
			DistanceMeters: distance,
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check in %s: %w", id, err)
	}

	s.logger.Info().Str("appointment_id", id).Float64("distance_m", a.CheckIn.DistanceMeters).Msg("checked in")
	s.publishAppointment(events.EventAppointmentCheckedIn, a, a.ProviderID)
	return a, nil
}

// CheckOut completes the appointment and credits the provider with the
// earnings snapshotted at booking. The status transition happens first, so a
// second check-out fails before reaching the ledger.
func (s *SchedulingService) CheckOut(ctx context.Context, id string, ev Evidence) (*models.Appointment, error) {
	a, err := s.appointments.Update(ctx, id, func(a *models.Appointment) error {
		if a.Status != models.StatusConfirmed {
			return fmt.Errorf("%w: cannot check out of a %s appointment", domain.ErrStateTransition, a.Status)
		}
		if a.CheckIn == nil {
			return fmt.Errorf("%w: appointment %s was never checked in", domain.ErrStateTransition, id)
		}
		if a.CheckOut != nil {
			return fmt.Errorf("%w: appointment %s already checked out", domain.ErrStateTransition, id)
		}

		distance, verified, err := s.verifier.Verify(a.Target, ev.Location)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		a.CheckOut = &models.AppointmentAction{
			Timestamp:      now,
			Location:       ev.Location,
			PhotoRef:       ev.PhotoRef,
			Verified:       verified,
			DistanceMeters: distance,
		}
		a.Status = models.StatusCompleted
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check out %s: %w", id, err)
	}

	s.creditEarnings(ctx, a)
	s.publishAppointment(events.EventAppointmentCompleted, a, a.ProviderID)
	return a, nil
}

// creditEarnings pays the provider. The appointment id is the ledger
// reference, so a retried credit can never land twice.
func (s *SchedulingService) creditEarnings(ctx context.Context, a *models.Appointment) {
	description := fmt.Sprintf("Earnings: %s on %s", a.ServiceName, a.Date)
	credit := func(ctx context.Context) error {
		_, err := s.ledger.Credit(ctx, a.ProviderID, a.Earnings, description, a.ID)
		if errors.Is(err, domain.ErrDuplicateReference) {
			return nil
		}
		return err
	}

	err := credit(ctx)
	if err == nil {
		s.logger.Info().Str("appointment_id", a.ID).Str("provider_id", a.ProviderID).Str("earnings", a.Earnings.String()).Msg("shift completed, earnings credited")
		return
	}

	s.logger.Error().Err(err).Str("appointment_id", a.ID).Msg("earnings credit failed")
	if s.jobs != nil {
		s.jobs.Schedule("appointment:"+a.ID, 0, "earnings_credit", credit)
	}
}

// AddCareLog attaches a note to an appointment. Only its provider or client
// may write one.
func (s *SchedulingService) AddCareLog(ctx context.Context, appointmentID, authorID, note string) (*models.CareLog, error) {
	if strings.TrimSpace(note) == "" {
		return nil, fmt.Errorf("%w: note is required", domain.ErrValidation)
	}
	a, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if authorID != a.ProviderID && authorID != a.ClientID {
		return nil, fmt.Errorf("%w: %s is not a party to appointment %s", domain.ErrValidation, authorID, appointmentID)
	}

	entry := &models.CareLog{
		ID:            uuid.NewString(),
		AppointmentID: appointmentID,
		AuthorID:      authorID,
		Note:          strings.TrimSpace(note),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.careLogs.Create(ctx, entry.ID, entry); err != nil {
		return nil, fmt.Errorf("persist care log: %w", err)
	}
	return entry, nil
}

func (s *SchedulingService) CareLogs(ctx context.Context, appointmentID string) ([]*models.CareLog, error) {
	if _, err := s.GetAppointment(ctx, appointmentID); err != nil {
		return nil, err
	}
	logs, err := s.careLogs.List(ctx, func(l *models.CareLog) bool { return l.AppointmentID == appointmentID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.Before(logs[j].CreatedAt) })
	return logs, nil
}

func (s *SchedulingService) publishBooking(created []*models.Appointment, seriesID string) {
	if s.eventBus == nil || len(created) == 0 {
		return
	}
	first := created[0]
	payload := events.BookingPayload{
		SeriesID:    seriesID,
		ProviderID:  first.ProviderID,
		ClientID:    first.ClientID,
		ServiceName: first.ServiceName,
	}
	for _, a := range created {
		payload.AppointmentIDs = append(payload.AppointmentIDs, a.ID)
		payload.Dates = append(payload.Dates, a.Date)
	}
	if err := s.eventBus.PublishJSON(events.EventAppointmentCreated, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", events.EventAppointmentCreated).Msg("publish event error")
	}
}

func (s *SchedulingService) publishAppointment(eventType string, a *models.Appointment, actorID string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.NewAppointmentPayload(a, actorID)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", a.ID).Msg("publish event error")
	}
}
