package cdek

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// endpoint is a static description of one API method.
type endpoint struct {
	method string
	path   string // may contain a {uuid} placeholder
}

var (
	epRegions        = endpoint{http.MethodGet, "/location/regions"}
	epCities         = endpoint{http.MethodGet, "/location/cities"}
	epDeliveryPoints = endpoint{http.MethodGet, "/deliverypoints"}
	epTariff         = endpoint{http.MethodPost, "/calculator/tariff"}
	epTariffList     = endpoint{http.MethodPost, "/calculator/tarifflist"}
	epCreateOrder    = endpoint{http.MethodPost, "/orders"}
	epGetOrder       = endpoint{http.MethodGet, "/orders/{uuid}"}
	epFindOrder      = endpoint{http.MethodGet, "/orders"}
	epUpdateOrder    = endpoint{http.MethodPatch, "/orders"}
	epDeleteOrder    = endpoint{http.MethodDelete, "/orders/{uuid}"}
	epAddWebhook     = endpoint{http.MethodPost, "/webhooks"}
	epListWebhooks   = endpoint{http.MethodGet, "/webhooks"}
	epDeleteWebhook  = endpoint{http.MethodDelete, "/webhooks/{uuid}"}
	epCreateReceipt  = endpoint{http.MethodPost, "/print/orders"}
	epGetReceipt     = endpoint{http.MethodGet, "/print/orders/{uuid}"}
	epReceiptPDF     = endpoint{http.MethodGet, "/print/orders/{uuid}.pdf"}
	epCreateBarcode  = endpoint{http.MethodPost, "/print/barcodes"}
	epGetBarcode     = endpoint{http.MethodGet, "/print/barcodes/{uuid}"}
	epBarcodePDF     = endpoint{http.MethodGet, "/print/barcodes/{uuid}.pdf"}
)

func (e endpoint) request(id uuid.UUID, query Query, body interface{}) *Request {
	return &Request{
		Method: e.method,
		Path:   e.resolve(id),
		Query:  query,
		Body:   body,
	}
}

func (e endpoint) resolve(id uuid.UUID) string {
	return strings.Replace(e.path, "{uuid}", id.String(), 1)
}

// RegionsQuery filters the region directory.
type RegionsQuery struct {
	CountryCodes    []string
	RegionCode      int
	KladrRegionCode string
	FiasRegionGUID  string
	Size            int
	Page            int
	Lang            string
}

func (q *RegionsQuery) query() Query {
	if q == nil {
		return nil
	}
	out := Query{}
	if len(q.CountryCodes) > 0 {
		out["country_codes"] = q.CountryCodes
	}
	setInt(out, "region_code", q.RegionCode)
	setString(out, "kladr_region_code", q.KladrRegionCode)
	setString(out, "fias_region_guid", q.FiasRegionGUID)
	setInt(out, "size", q.Size)
	setInt(out, "page", q.Page)
	setString(out, "lang", q.Lang)
	return out
}

// CitiesQuery filters the city directory.
type CitiesQuery struct {
	CountryCodes []string
	RegionCode   int
	FiasGUID     string
	PostalCode   string
	Code         int
	City         string
	Size         int
	Page         int
	Lang         string
}

func (q *CitiesQuery) query() Query {
	if q == nil {
		return nil
	}
	out := Query{}
	if len(q.CountryCodes) > 0 {
		out["country_codes"] = q.CountryCodes
	}
	setInt(out, "region_code", q.RegionCode)
	setString(out, "fias_guid", q.FiasGUID)
	setString(out, "postal_code", q.PostalCode)
	setInt(out, "code", q.Code)
	setString(out, "city", q.City)
	setInt(out, "size", q.Size)
	setInt(out, "page", q.Page)
	setString(out, "lang", q.Lang)
	return out
}

// DeliveryPointsQuery filters pickup offices.
type DeliveryPointsQuery struct {
	PostalCode   string
	CityCode     int
	Type         string // PVZ, POSTAMAT or ALL
	CountryCode  string
	RegionCode   int
	HaveCashless *bool
	HaveCash     *bool
	AllowedCOD   *bool
	IsHandout    *bool
	IsReception  *bool
	WeightMax    int
	Lang         string
	Code         string
	Size         int
	Page         int
}

func (q *DeliveryPointsQuery) query() Query {
	if q == nil {
		return nil
	}
	out := Query{}
	setString(out, "postal_code", q.PostalCode)
	setInt(out, "city_code", q.CityCode)
	setString(out, "type", q.Type)
	setString(out, "country_code", q.CountryCode)
	setInt(out, "region_code", q.RegionCode)
	setBool(out, "have_cashless", q.HaveCashless)
	setBool(out, "have_cash", q.HaveCash)
	setBool(out, "allowed_cod", q.AllowedCOD)
	setBool(out, "is_handout", q.IsHandout)
	setBool(out, "is_reception", q.IsReception)
	setInt(out, "weight_max", q.WeightMax)
	setString(out, "lang", q.Lang)
	setString(out, "code", q.Code)
	setInt(out, "size", q.Size)
	setInt(out, "page", q.Page)
	return out
}

func setString(q Query, key, v string) {
	if v != "" {
		q[key] = v
	}
}

func setInt(q Query, key string, v int) {
	if v != 0 {
		q[key] = v
	}
}

func setBool(q Query, key string, v *bool) {
	if v != nil {
		q[key] = *v
	}
}

// GetRegions lists regions.
func (c *Client) GetRegions(ctx context.Context, q *RegionsQuery) ([]Region, error) {
	return invoke[[]Region](ctx, c.dispatcher, epRegions.request(uuid.Nil, q.query(), nil))
}

// GetCities lists cities.
func (c *Client) GetCities(ctx context.Context, q *CitiesQuery) ([]City, error) {
	return invoke[[]City](ctx, c.dispatcher, epCities.request(uuid.Nil, q.query(), nil))
}

// GetDeliveryPoints lists pickup offices and parcel lockers.
func (c *Client) GetDeliveryPoints(ctx context.Context, q *DeliveryPointsQuery) ([]DeliveryPoint, error) {
	return invoke[[]DeliveryPoint](ctx, c.dispatcher, epDeliveryPoints.request(uuid.Nil, q.query(), nil))
}

// CalculateByTariff quotes delivery under req.TariffCode.
func (c *Client) CalculateByTariff(ctx context.Context, req *TariffRequest) (*TariffQuote, error) {
	return invoke[*TariffQuote](ctx, c.dispatcher, epTariff.request(uuid.Nil, nil, req))
}

// CalculateTariffList quotes every tariff available for the route.
func (c *Client) CalculateTariffList(ctx context.Context, req *TariffRequest) (*TariffList, error) {
	return invoke[*TariffList](ctx, c.dispatcher, epTariffList.request(uuid.Nil, nil, req))
}

// CreateOrder registers an order. Registration is asynchronous: poll GetOrder
// with the returned entity uuid to learn the outcome.
func (c *Client) CreateOrder(ctx context.Context, req *OrderRequest) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epCreateOrder.request(uuid.Nil, nil, req))
}

// GetOrder fetches an order by uuid.
func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*OrderInfo, error) {
	return invoke[*OrderInfo](ctx, c.dispatcher, epGetOrder.request(id, nil, nil))
}

// GetOrderByNumber fetches an order by its CDEK number.
func (c *Client) GetOrderByNumber(ctx context.Context, cdekNumber string) (*OrderInfo, error) {
	q := Query{"cdek_number": cdekNumber}
	return invoke[*OrderInfo](ctx, c.dispatcher, epFindOrder.request(uuid.Nil, q, nil))
}

// GetOrderByIMNumber fetches an order by the client's own number.
func (c *Client) GetOrderByIMNumber(ctx context.Context, number string) (*OrderInfo, error) {
	q := Query{"im_number": number}
	return invoke[*OrderInfo](ctx, c.dispatcher, epFindOrder.request(uuid.Nil, q, nil))
}

// UpdateOrder changes an order.
func (c *Client) UpdateOrder(ctx context.Context, req *OrderUpdate) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epUpdateOrder.request(uuid.Nil, nil, req))
}

// DeleteOrder cancels an order that has not been handed over yet.
func (c *Client) DeleteOrder(ctx context.Context, id uuid.UUID) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epDeleteOrder.request(id, nil, nil))
}

// AddWebhook subscribes url to events of type t.
func (c *Client) AddWebhook(ctx context.Context, url string, t EventType) (*EntityOperation, error) {
	body := &WebhookRequest{URL: url, Type: t}
	return invoke[*EntityOperation](ctx, c.dispatcher, epAddWebhook.request(uuid.Nil, nil, body))
}

// GetWebhooks lists the account's webhook subscriptions.
func (c *Client) GetWebhooks(ctx context.Context) ([]Webhook, error) {
	return invoke[[]Webhook](ctx, c.dispatcher, epListWebhooks.request(uuid.Nil, nil, nil))
}

// DeleteWebhook removes a webhook subscription.
func (c *Client) DeleteWebhook(ctx context.Context, id uuid.UUID) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epDeleteWebhook.request(id, nil, nil))
}

// CreateOrderReceipt requests a waybill receipt.
func (c *Client) CreateOrderReceipt(ctx context.Context, req *ReceiptRequest) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epCreateReceipt.request(uuid.Nil, nil, req))
}

// GetOrderReceipt fetches the state of a waybill receipt.
func (c *Client) GetOrderReceipt(ctx context.Context, id uuid.UUID) (*PrintForm, error) {
	return invoke[*PrintForm](ctx, c.dispatcher, epGetReceipt.request(id, nil, nil))
}

// DownloadOrderReceipt streams a ready waybill receipt as PDF.
func (c *Client) DownloadOrderReceipt(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	return c.Download(ctx, epReceiptPDF.resolve(id))
}

// CreateBarcode requests package barcodes.
func (c *Client) CreateBarcode(ctx context.Context, req *BarcodeRequest) (*EntityOperation, error) {
	return invoke[*EntityOperation](ctx, c.dispatcher, epCreateBarcode.request(uuid.Nil, nil, req))
}

// GetBarcode fetches the state of a barcode document.
func (c *Client) GetBarcode(ctx context.Context, id uuid.UUID) (*PrintForm, error) {
	return invoke[*PrintForm](ctx, c.dispatcher, epGetBarcode.request(id, nil, nil))
}

// DownloadBarcode streams a ready barcode document as PDF.
func (c *Client) DownloadBarcode(ctx context.Context, id uuid.UUID) (io.ReadCloser, error) {
	return c.Download(ctx, epBarcodePDF.resolve(id))
}
