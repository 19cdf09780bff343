package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/slot-booking/internal/domain"
	"github.com/prohmpiriya/slot-booking/internal/dto"
	"github.com/prohmpiriya/slot-booking/internal/service"
	"github.com/prohmpiriya/slot-booking/pkg/middleware"
	"github.com/prohmpiriya/slot-booking/pkg/response"
)

// MockBookingService is a mock implementation of service.BookingService
type MockBookingService struct {
	CreateReservationFunc       func(ctx context.Context, holderID string, req *dto.CreateReservationRequest) (*dto.ReservationResponse, error)
	GetReservationFunc          func(ctx context.Context, reservationID, holderID string) (*dto.ReservationResponse, error)
	ReleaseReservationFunc      func(ctx context.Context, reservationID, holderID string) error
	GetAvailabilityFunc         func(ctx context.Context, slotID string) (*domain.Availability, error)
	ConfirmPaymentFunc          func(ctx context.Context, holderID string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error)
	CancelBookingFunc           func(ctx context.Context, bookingID, actorID, reason string) (*domain.Booking, error)
	MarkAsNoShowFunc            func(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	GetBookingFunc              func(ctx context.Context, bookingID, actorID string) (*domain.Booking, error)
	ListCustomerBookingsFunc    func(ctx context.Context, holderID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)
	ListAgencyBookingsFunc      func(ctx context.Context, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)
	ListOfferingBookingsFunc    func(ctx context.Context, offeringID, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error)
	ListCapacityAdjustmentsFunc func(ctx context.Context, slotID, ownerID string, limit int) ([]*domain.CapacityAdjustment, error)
}

var _ service.BookingService = (*MockBookingService)(nil)

func (m *MockBookingService) CreateReservation(ctx context.Context, holderID string, req *dto.CreateReservationRequest) (*dto.ReservationResponse, error) {
	if m.CreateReservationFunc != nil {
		return m.CreateReservationFunc(ctx, holderID, req)
	}
	return nil, errors.New("not implemented")
}

func (m *MockBookingService) GetReservation(ctx context.Context, reservationID, holderID string) (*dto.ReservationResponse, error) {
	if m.GetReservationFunc != nil {
		return m.GetReservationFunc(ctx, reservationID, holderID)
	}
	return nil, domain.ErrReservationNotFound
}

func (m *MockBookingService) ReleaseReservation(ctx context.Context, reservationID, holderID string) error {
	if m.ReleaseReservationFunc != nil {
		return m.ReleaseReservationFunc(ctx, reservationID, holderID)
	}
	return nil
}

func (m *MockBookingService) IsSlotAvailable(ctx context.Context, slotID string) (bool, error) {
	return false, nil
}

func (m *MockBookingService) GetAvailability(ctx context.Context, slotID string) (*domain.Availability, error) {
	if m.GetAvailabilityFunc != nil {
		return m.GetAvailabilityFunc(ctx, slotID)
	}
	return nil, domain.ErrSlotNotFound
}

func (m *MockBookingService) ConfirmPayment(ctx context.Context, holderID string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error) {
	if m.ConfirmPaymentFunc != nil {
		return m.ConfirmPaymentFunc(ctx, holderID, req)
	}
	return nil, errors.New("not implemented")
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID, actorID, reason)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) MarkAsNoShow(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	if m.MarkAsNoShowFunc != nil {
		return m.MarkAsNoShowFunc(ctx, bookingID, actorID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID, actorID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) ListCustomerBookings(ctx context.Context, holderID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	if m.ListCustomerBookingsFunc != nil {
		return m.ListCustomerBookingsFunc(ctx, holderID, filter)
	}
	return dto.NewPaginatedResponse([]*domain.Booking{}, 1, 15, 0), nil
}

func (m *MockBookingService) ListAgencyBookings(ctx context.Context, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	if m.ListAgencyBookingsFunc != nil {
		return m.ListAgencyBookingsFunc(ctx, ownerID, filter)
	}
	return dto.NewPaginatedResponse([]*domain.Booking{}, 1, 15, 0), nil
}

func (m *MockBookingService) ListOfferingBookings(ctx context.Context, offeringID, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
	if m.ListOfferingBookingsFunc != nil {
		return m.ListOfferingBookingsFunc(ctx, offeringID, ownerID, filter)
	}
	return dto.NewPaginatedResponse([]*domain.Booking{}, 1, 15, 0), nil
}

func (m *MockBookingService) ListCapacityAdjustments(ctx context.Context, slotID, ownerID string, limit int) ([]*domain.CapacityAdjustment, error) {
	if m.ListCapacityAdjustmentsFunc != nil {
		return m.ListCapacityAdjustmentsFunc(ctx, slotID, ownerID, limit)
	}
	return []*domain.CapacityAdjustment{}, nil
}

func (m *MockBookingService) GenerateBookingReference() (string, error) {
	return "BOOK-20260310-ABC123", nil
}

func setupRouter(svc service.BookingService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(&RouterConfig{
		Booking: NewBookingHandler(svc, nil),
		Agency:  NewAgencyHandler(svc, nil),
		Health:  NewHealthHandler(nil),
		Auth:    middleware.Auth(&middleware.AuthConfig{Secret: "test-secret", TrustGatewayHeader: true}),
	})
}

func doRequest(router *gin.Engine, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(middleware.UserIDHeader, userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBookingHandler_CreateReservation(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			userID:     "user-001",
			body:       `{"offering_time_slot_id":"slot-1","customer_notes":"hi"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "missing actor",
			body:       `{"offering_time_slot_id":"slot-1"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "MISSING_TOKEN",
		},
		{
			name:       "missing slot id",
			userID:     "user-001",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name:       "slot full",
			userID:     "user-001",
			body:       `{"offering_time_slot_id":"slot-1"}`,
			serviceErr: domain.ErrSlotFullyBooked,
			wantStatus: http.StatusConflict,
			wantCode:   "SLOT_FULLY_BOOKED",
		},
		{
			name:       "slot not found",
			userID:     "user-001",
			body:       `{"offering_time_slot_id":"slot-1"}`,
			serviceErr: domain.ErrSlotNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "SLOT_NOT_FOUND",
		},
		{
			name:       "duplicate hold",
			userID:     "user-001",
			body:       `{"offering_time_slot_id":"slot-1"}`,
			serviceErr: domain.ErrDuplicateReservation,
			wantStatus: http.StatusConflict,
			wantCode:   "DUPLICATE_RESERVATION",
		},
		{
			name:       "redis down",
			userID:     "user-001",
			body:       `{"offering_time_slot_id":"slot-1"}`,
			serviceErr: errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				CreateReservationFunc: func(ctx context.Context, holderID string, req *dto.CreateReservationRequest) (*dto.ReservationResponse, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					assert.Equal(t, "user-001", holderID)
					return &dto.ReservationResponse{
						ReservationID: "res-1",
						SlotID:        req.SlotID,
						TotalPrice:    500,
						ExpiresAt:     time.Now().Add(10 * time.Minute),
						TTLSeconds:    600,
					}, nil
				},
			}

			w := doRequest(setupRouter(svc), http.MethodPost, "/api/v1/reservations", tt.userID, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeEnvelope(t, w)
			if tt.wantCode != "" {
				assert.False(t, body.Success)
				require.NotNil(t, body.Error)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				return
			}
			assert.True(t, body.Success)
			assert.Contains(t, w.Body.String(), `"reservation_id":"res-1"`)
			assert.Contains(t, w.Body.String(), `"ttl_seconds":600`)
		})
	}
}

func TestBookingHandler_ConfirmPayment(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "accepted",
			body:       `{"reservation_id":"res-1","payment_id":"pay-1"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "expired",
			body:       `{"reservation_id":"res-1","payment_id":"pay-1"}`,
			serviceErr: domain.ErrReservationExpired,
			wantStatus: http.StatusGone,
			wantCode:   "RESERVATION_EXPIRED",
		},
		{
			name:       "already paid",
			body:       `{"reservation_id":"res-1","payment_id":"pay-1"}`,
			serviceErr: domain.ErrReservationAlreadyPaid,
			wantStatus: http.StatusConflict,
			wantCode:   "ALREADY_PAID",
		},
		{
			name:       "someone else's hold",
			body:       `{"reservation_id":"res-1","payment_id":"pay-1"}`,
			serviceErr: domain.ErrUnauthorizedAccess,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "missing payment id",
			body:       `{"reservation_id":"res-1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				ConfirmPaymentFunc: func(ctx context.Context, holderID string, req *dto.ConfirmPaymentRequest) (*dto.ConfirmPaymentResponse, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &dto.ConfirmPaymentResponse{ReservationID: req.ReservationID, PaymentID: req.PaymentID, Status: "processing"}, nil
				},
			}

			w := doRequest(setupRouter(svc), http.MethodPost, "/api/v1/payments/confirm", "user-001", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeEnvelope(t, w)
			if tt.wantCode != "" {
				require.NotNil(t, body.Error)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				return
			}
			assert.Contains(t, w.Body.String(), `"status":"processing"`)
		})
	}
}

func TestBookingHandler_CancelBooking(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
		wantReason string
	}{
		{
			name:       "customer cancels with reason",
			path:       "/api/v1/bookings/b-1/cancel",
			body:       `{"cancellation_reason":"sick"}`,
			wantStatus: http.StatusOK,
			wantReason: "sick",
		},
		{
			name:       "agency cancels without body",
			path:       "/api/v1/agency/bookings/b-1/cancel",
			wantStatus: http.StatusOK,
		},
		{
			name:       "already cancelled",
			path:       "/api/v1/bookings/b-1/cancel",
			serviceErr: domain.ErrBookingAlreadyCancelled,
			wantStatus: http.StatusBadRequest,
			wantCode:   "ALREADY_CANCELLED",
		},
		{
			name:       "not found",
			path:       "/api/v1/bookings/b-1/cancel",
			serviceErr: domain.ErrBookingNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "BOOKING_NOT_FOUND",
		},
		{
			name:       "reason too long",
			path:       "/api/v1/bookings/b-1/cancel",
			body:       fmt.Sprintf(`{"cancellation_reason":%q}`, strings.Repeat("x", 501)),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				CancelBookingFunc: func(ctx context.Context, bookingID, actorID, reason string) (*domain.Booking, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					assert.Equal(t, "b-1", bookingID)
					assert.Equal(t, tt.wantReason, reason)
					return &domain.Booking{ID: bookingID, Status: domain.BookingStatusCancelled, CancellationReason: reason}, nil
				},
			}

			w := doRequest(setupRouter(svc), http.MethodPost, tt.path, "user-001", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				body := decodeEnvelope(t, w)
				require.NotNil(t, body.Error)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				return
			}
			assert.Contains(t, w.Body.String(), `"status":"cancelled"`)
		})
	}
}

func TestAgencyHandler_MarkAsNoShow(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "marked", wantStatus: http.StatusOK},
		{name: "not started", serviceErr: domain.ErrBookingTimeNotPassed, wantStatus: http.StatusBadRequest, wantCode: "BOOKING_TIME_NOT_PASSED"},
		{name: "not owner", serviceErr: domain.ErrUnauthorizedAccess, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{
			name:       "wrong status",
			serviceErr: &domain.BookingStatusError{Status: domain.BookingStatusCompleted, Action: "no-show"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_BOOKING_STATUS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockBookingService{
				MarkAsNoShowFunc: func(ctx context.Context, bookingID, actorID string) (*domain.Booking, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &domain.Booking{ID: bookingID, Status: domain.BookingStatusNoShow}, nil
				},
			}

			w := doRequest(setupRouter(svc), http.MethodPost, "/api/v1/agency/bookings/b-1/no-show", "agency-1", "")

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				body := decodeEnvelope(t, w)
				require.NotNil(t, body.Error)
				assert.Equal(t, tt.wantCode, body.Error.Code)
			}
		})
	}
}

func TestBookingHandler_ListBookings(t *testing.T) {
	var got *domain.BookingFilter
	svc := &MockBookingService{
		ListCustomerBookingsFunc: func(ctx context.Context, holderID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
			got = filter
			return dto.NewPaginatedResponse([]*domain.Booking{{ID: "b-1"}}, filter.Page, filter.PerPage, 16), nil
		},
	}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/bookings?status=confirmed&date_from=2026-03-01&date_to=2026-03-31&page=2&per_page=15&sort_direction=asc", "user-001", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, 2, got.Page)
	assert.False(t, got.SortDesc)
	require.NotNil(t, got.DateTo)
	assert.Equal(t, 31, got.DateTo.Day())
	assert.Contains(t, w.Body.String(), `"last_page":2`)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings?status=pending", "user-001", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings?date_from=03/01/2026", "user-001", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decodeEnvelope(t, w).Error.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/bookings?per_page=500", "user-001", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAgencyHandler_Listings(t *testing.T) {
	svc := &MockBookingService{
		ListOfferingBookingsFunc: func(ctx context.Context, offeringID, ownerID string, filter *domain.BookingFilter) (*dto.PaginatedResponse, error) {
			if ownerID != "agency-1" {
				return nil, domain.ErrUnauthorizedAccess
			}
			return dto.NewPaginatedResponse([]*domain.Booking{}, 1, 15, 0), nil
		},
		ListCapacityAdjustmentsFunc: func(ctx context.Context, slotID, ownerID string, limit int) ([]*domain.CapacityAdjustment, error) {
			assert.Equal(t, 20, limit)
			return []*domain.CapacityAdjustment{{SlotID: slotID, Delta: -1, Reason: domain.AdjustmentCancelled, Applied: true}}, nil
		},
	}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/agency/offerings/offering-1/bookings", "agency-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agency/offerings/offering-1/bookings", "agency-2", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agency/bookings", "agency-1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/agency/slots/slot-1/adjustments?limit=20", "agency-1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"cancelled"`)
}

func TestBookingHandler_Reservations(t *testing.T) {
	svc := &MockBookingService{
		GetReservationFunc: func(ctx context.Context, reservationID, holderID string) (*dto.ReservationResponse, error) {
			if holderID != "user-001" {
				return nil, domain.ErrUnauthorizedAccess
			}
			return &dto.ReservationResponse{ReservationID: reservationID}, nil
		},
		ReleaseReservationFunc: func(ctx context.Context, reservationID, holderID string) error {
			return domain.ErrReservationNotFound
		},
	}
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/reservations/res-1", "user-001", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/reservations/res-1", "user-002", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, http.MethodDelete, "/api/v1/reservations/res-1", "user-001", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESERVATION_NOT_FOUND", decodeEnvelope(t, w).Error.Code)
}

func TestBookingHandler_GetAvailability_NoAuth(t *testing.T) {
	svc := &MockBookingService{
		GetAvailabilityFunc: func(ctx context.Context, slotID string) (*domain.Availability, error) {
			return domain.NewAvailability(slotID, 10, 4, 3), nil
		},
	}

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/slots/slot-1/availability", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":3`)
	assert.Contains(t, w.Body.String(), `"is_available":true`)

	w = doRequest(setupRouter(&MockBookingService{}), http.MethodGet, "/api/v1/slots/slot-404/availability", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(ctx context.Context) error { return s.err }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	healthy := NewHealthHandler(map[string]HealthChecker{"database": stubChecker{}, "kafka": nil})
	broken := NewHealthHandler(map[string]HealthChecker{"redis": stubChecker{err: errors.New("timeout")}})
	router.GET("/health", healthy.Health)
	router.GET("/ready", healthy.Ready)
	router.GET("/ready-broken", broken.Ready)

	w := doRequest(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kafka":"not configured"`)

	w = doRequest(router, http.MethodGet, "/ready-broken", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy: timeout")
}
