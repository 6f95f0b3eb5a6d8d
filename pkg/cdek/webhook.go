package cdek

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// EventType identifies a webhook notification.
type EventType string

// Webhook event types.
const (
	EventOrderStatus         EventType = "ORDER_STATUS"
	EventPrintForm           EventType = "PRINT_FORM"
	EventDownloadPhoto       EventType = "DOWNLOAD_PHOTO" // legacy
	EventPrealertClosed      EventType = "PREALERT_CLOSED"
	EventAccompanyingWaybill EventType = "ACCOMPANYING_WAYBILL"
	EventOfficeAvailability  EventType = "OFFICE_AVAILABILITY"
	EventOrderModified       EventType = "ORDER_MODIFIED"
	EventDeliveryAgreement   EventType = "DELIV_AGREEMENT"
	EventDeliveryProblem     EventType = "DELIV_PROBLEM"
)

// EventTypes lists every event type the router dispatches.
var EventTypes = []EventType{
	EventOrderStatus,
	EventPrintForm,
	EventDownloadPhoto,
	EventPrealertClosed,
	EventAccompanyingWaybill,
	EventOfficeAvailability,
	EventOrderModified,
	EventDeliveryAgreement,
	EventDeliveryProblem,
}

// Known reports whether t is one of EventTypes.
func (t EventType) Known() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ErrEventType is returned by Event accessors called for a different type.
var ErrEventType = errors.New("event type mismatch")

const maxWebhookBody = 1 << 20

// Event is an inbound webhook notification. Attributes are kept raw and
// decoded on demand by the typed accessors.
type Event struct {
	Type       EventType       `json:"type"`
	DateTime   string          `json:"date_time"`
	UUID       string          `json:"uuid"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// OrderStatusAttributes carries an order status change.
type OrderStatusAttributes struct {
	IsReturn         bool            `json:"is_return"`
	CDEKNumber       string          `json:"cdek_number"`
	Number           string          `json:"number,omitempty"`
	StatusCode       string          `json:"status_code"`
	StatusReasonCode string          `json:"status_reason_code,omitempty"`
	StatusDateTime   string          `json:"status_date_time"`
	CityName         string          `json:"city_name,omitempty"`
	CityCode         string          `json:"city_code,omitempty"`
	Code             string          `json:"code"`
	IsReverse        bool            `json:"is_reverse"`
	IsClientReturn   bool            `json:"is_client_return"`
	RelatedEntities  []RelatedEntity `json:"related_entities,omitempty"`
	Deleted          bool            `json:"deleted,omitempty"`
}

// PrintFormAttributes announces a ready print form.
type PrintFormAttributes struct {
	Type string `json:"type"` // WAYBILL or BARCODE
	URL  string `json:"url"`
}

// DownloadPhotoAttributes announces a ready photo archive.
type DownloadPhotoAttributes struct {
	CDEKNumber string `json:"cdek_number"`
	Link       string `json:"link"`
}

// PrealertClosedAttributes announces a closed prealert.
type PrealertClosedAttributes struct {
	PrealertNumber    string `json:"prealert_number"`
	ClosedDate        string `json:"closed_date"`
	FactShipmentPoint string `json:"fact_shipment_point"`
}

// AccompanyingWaybillAttributes carries transport details for a waybill.
type AccompanyingWaybillAttributes struct {
	CDEKNumber               string   `json:"cdek_number"`
	ClientName               string   `json:"client_name"`
	FlightNumber             string   `json:"flight_number,omitempty"`
	AirWaybillNumbers        []string `json:"air_waybill_numbers,omitempty"`
	VehicleNumbers           []string `json:"vehicle_numbers,omitempty"`
	VehicleDriver            string   `json:"vehicle_driver,omitempty"`
	PlannedDepartureDateTime string   `json:"planned_departure_date_time"`
}

// OfficeAvailabilityAttributes announces an office opening or closing.
type OfficeAvailabilityAttributes struct {
	Type string `json:"type"` // AVAILABLE_OFFICE or UNAVAILABLE_OFFICE
	Code string `json:"code"`
}

// OrderModifiedAttributes announces a changed order field.
type OrderModifiedAttributes struct {
	ModificationType string `json:"modification_type"`
	NewValue         struct {
		Type  string `json:"type"` // DATE, FLOAT or INTEGER
		Value string `json:"value"`
	} `json:"new_value"`
}

// DeliveryAgreementAttributes carries a new delivery arrangement.
type DeliveryAgreementAttributes struct {
	DeliveryUUID  string `json:"delivery_uuid"`
	DateTime      string `json:"date_time"`
	CDEKNumber    string `json:"cdek_number"`
	Date          string `json:"date,omitempty"`
	TimeFrom      string `json:"time_from,omitempty"`
	TimeTo        string `json:"time_to,omitempty"`
	Comment       string `json:"comment,omitempty"`
	Source        string `json:"source"`
	Type          string `json:"type"` // DOOR, WAREHOUSE or POSTAMAT
	DeliveryPoint string `json:"delivery_point,omitempty"`
}

// DeliveryProblemAttributes carries a delivery problem.
type DeliveryProblemAttributes struct {
	CDEKNumber string `json:"cdek_number"`
	Number     string `json:"number,omitempty"`
	Code       string `json:"code"`
	CreateDate string `json:"create_date"`
}

func decodeAttributes[T any](e *Event, want EventType) (*T, error) {
	if e.Type != want {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrEventType, e.Type, want)
	}
	var attrs T
	if len(e.Attributes) == 0 {
		return &attrs, nil
	}
	if err := json.Unmarshal(e.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("decoding %s attributes: %w", e.Type, err)
	}
	return &attrs, nil
}

// OrderStatus decodes ORDER_STATUS attributes.
func (e *Event) OrderStatus() (*OrderStatusAttributes, error) {
	return decodeAttributes[OrderStatusAttributes](e, EventOrderStatus)
}

// PrintForm decodes PRINT_FORM attributes.
func (e *Event) PrintForm() (*PrintFormAttributes, error) {
	return decodeAttributes[PrintFormAttributes](e, EventPrintForm)
}

// DownloadPhoto decodes DOWNLOAD_PHOTO attributes.
func (e *Event) DownloadPhoto() (*DownloadPhotoAttributes, error) {
	return decodeAttributes[DownloadPhotoAttributes](e, EventDownloadPhoto)
}

// PrealertClosed decodes PREALERT_CLOSED attributes.
func (e *Event) PrealertClosed() (*PrealertClosedAttributes, error) {
	return decodeAttributes[PrealertClosedAttributes](e, EventPrealertClosed)
}

// AccompanyingWaybill decodes ACCOMPANYING_WAYBILL attributes.
func (e *Event) AccompanyingWaybill() (*AccompanyingWaybillAttributes, error) {
	return decodeAttributes[AccompanyingWaybillAttributes](e, EventAccompanyingWaybill)
}

// OfficeAvailability decodes OFFICE_AVAILABILITY attributes.
func (e *Event) OfficeAvailability() (*OfficeAvailabilityAttributes, error) {
	return decodeAttributes[OfficeAvailabilityAttributes](e, EventOfficeAvailability)
}

// OrderModified decodes ORDER_MODIFIED attributes.
func (e *Event) OrderModified() (*OrderModifiedAttributes, error) {
	return decodeAttributes[OrderModifiedAttributes](e, EventOrderModified)
}

// DeliveryAgreement decodes DELIV_AGREEMENT attributes.
func (e *Event) DeliveryAgreement() (*DeliveryAgreementAttributes, error) {
	return decodeAttributes[DeliveryAgreementAttributes](e, EventDeliveryAgreement)
}

// DeliveryProblem decodes DELIV_PROBLEM attributes.
func (e *Event) DeliveryProblem() (*DeliveryProblemAttributes, error) {
	return decodeAttributes[DeliveryProblemAttributes](e, EventDeliveryProblem)
}

// Listener handles one webhook event. A returned error is logged; it does not
// change the acknowledgment sent to the provider.
type Listener func(ctx context.Context, e *Event) error

// Subscription identifies a listener registered with On.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Type returns the event type the subscription listens to.
func (s Subscription) Type() EventType {
	return s.eventType
}

type subscriber struct {
	id uint64
	fn Listener
}

// Router dispatches webhook events to listeners by type, in subscription
// order. It is an http.Handler that always acknowledges a parsed
// notification with 200 "OK".
type Router struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[EventType][]subscriber

	logger   *otelzap.Logger
	recorder Recorder
}

// NewRouter creates an empty router. Nil arguments select no-op defaults.
func NewRouter(logger *otelzap.Logger, recorder Recorder) *Router {
	if logger == nil {
		logger = otelzap.New(zap.NewNop())
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Router{
		listeners: make(map[EventType][]subscriber),
		logger:    logger,
		recorder:  recorder,
	}
}

// On registers listener for events of type t.
func (r *Router) On(t EventType, listener Listener) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.listeners[t] = append(r.listeners[t], subscriber{id: r.nextID, fn: listener})
	return Subscription{eventType: t, id: r.nextID}
}

// Off removes a listener. Removing it twice is a no-op.
func (r *Router) Off(s Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.listeners[s.eventType]
	for i, sub := range subs {
		if sub.id != s.id {
			continue
		}
		next := make([]subscriber, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.listeners, s.eventType)
		} else {
			r.listeners[s.eventType] = next
		}
		return
	}
}

// Listeners returns the number of listeners registered for t.
func (r *Router) Listeners(t EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[t])
}

// Dispatch delivers e to every listener of its type and returns how many were
// invoked. Unknown types are ignored. Listener failures are isolated.
func (r *Router) Dispatch(ctx context.Context, e *Event) int {
	if !e.Type.Known() {
		r.recorder.RecordWebhook(string(e.Type), "ignored")
		r.logger.Ctx(ctx).Debug("Ignoring unknown webhook type", zap.String("type", string(e.Type)))
		return 0
	}

	r.mu.RLock()
	subs := r.listeners[e.Type]
	r.mu.RUnlock()

	for _, sub := range subs {
		r.invoke(ctx, sub.fn, e)
	}
	r.recorder.RecordWebhook(string(e.Type), "dispatched")
	return len(subs)
}

func (r *Router) invoke(ctx context.Context, fn Listener, e *Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.recorder.RecordWebhook(string(e.Type), "panic")
			r.logger.Ctx(ctx).Error("Webhook listener panicked",
				zap.String("type", string(e.Type)),
				zap.String("uuid", e.UUID),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := fn(ctx, e); err != nil {
		r.recorder.RecordWebhook(string(e.Type), "listener_error")
		r.logger.Ctx(ctx).Error("Webhook listener failed",
			zap.String("type", string(e.Type)),
			zap.String("uuid", e.UUID),
			zap.Error(err),
		)
	}
}

// ServeHTTP decodes a notification, dispatches it and acknowledges with
// 200 "OK". A body that is not a JSON object is answered with 400.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	var e Event
	body := http.MaxBytesReader(w, req.Body, maxWebhookBody)
	if err := json.NewDecoder(body).Decode(&e); err != nil {
		r.recorder.RecordWebhook("", "invalid")
		r.logger.Ctx(ctx).Warn("Rejecting malformed webhook", zap.Error(err))
		http.Error(w, "invalid webhook body", http.StatusBadRequest)
		return
	}
	_, _ = io.Copy(io.Discard, body)

	r.Dispatch(ctx, &e)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
