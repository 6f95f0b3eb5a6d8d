package cdek

// Money is a monetary amount with optional VAT.
type Money struct {
	Value   float64  `json:"value,omitempty"`
	VatSum  float64  `json:"vat_sum,omitempty"`
	VatRate *float64 `json:"vat_rate,omitempty"` // nil means no VAT
}

// Threshold is a goods cost bracket for the additional delivery charge.
type Threshold struct {
	Threshold float64  `json:"threshold"`
	Sum       float64  `json:"sum"`
	VatSum    float64  `json:"vat_sum,omitempty"`
	VatRate   *float64 `json:"vat_rate,omitempty"`
}

// Location is an address of a sender, recipient or office.
type Location struct {
	Code        int     `json:"code,omitempty"`
	FiasGUID    string  `json:"fias_guid,omitempty"`
	PostalCode  string  `json:"postal_code,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	RegionCode  int     `json:"region_code,omitempty"`
	SubRegion   string  `json:"sub_region,omitempty"`
	City        string  `json:"city,omitempty"`
	CityCode    int     `json:"city_code,omitempty"`
	KladrCode   string  `json:"kladr_code,omitempty"`
	Address     string  `json:"address,omitempty"`
	AddressFull string  `json:"address_full,omitempty"`
}

// Phone is a phone number in international format.
type Phone struct {
	Number     string `json:"number"`
	Additional string `json:"additional,omitempty"`
}

// Contact is a sender or recipient.
type Contact struct {
	Company        string  `json:"company,omitempty"`
	Name           string  `json:"name"`
	Email          string  `json:"email,omitempty"`
	Phones         []Phone `json:"phones,omitempty"`
	PassportSeries string  `json:"passport_series,omitempty"`
	PassportNumber string  `json:"passport_number,omitempty"`
	TIN            string  `json:"tin,omitempty"`
	ContragentType string  `json:"contragent_type,omitempty"` // LEGAL_ENTITY or INDIVIDUAL
}

// Seller is the true seller of the goods.
type Seller struct {
	Name          string `json:"name,omitempty"`
	INN           string `json:"inn,omitempty"`
	Phone         string `json:"phone,omitempty"`
	OwnershipForm int    `json:"ownership_form,omitempty"`
	Address       string `json:"address,omitempty"`
}

// Service is an additional service attached to an order or a quote.
type Service struct {
	Code            string  `json:"code"`
	Parameter       string  `json:"parameter,omitempty"`
	Sum             float64 `json:"sum,omitempty"`
	TotalSum        float64 `json:"total_sum,omitempty"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	DiscountSum     float64 `json:"discount_sum,omitempty"`
	VatRate         float64 `json:"vat_rate,omitempty"`
	VatSum          float64 `json:"vat_sum,omitempty"`
}

// Package is one parcel of an order. Weight is in grams, sizes in centimeters.
type Package struct {
	Number       string  `json:"number"`
	Weight       int     `json:"weight"`
	Length       int     `json:"length,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Comment      string  `json:"comment,omitempty"`
	Items        []Item  `json:"items,omitempty"`
	PackageID    string  `json:"package_id,omitempty"`
	WeightVolume float64 `json:"weight_volume,omitempty"`
	WeightCalc   float64 `json:"weight_calc,omitempty"`
}

// Item is a goods line inside a package.
type Item struct {
	Name        string  `json:"name"`
	WareKey     string  `json:"ware_key"`
	Payment     Money   `json:"payment"`
	Cost        float64 `json:"cost"`
	Weight      int     `json:"weight"`
	WeightGross int     `json:"weight_gross,omitempty"`
	Amount      int     `json:"amount"`
	Marking     string  `json:"marking,omitempty"`
	NameI18n    string  `json:"name_i18n,omitempty"`
	Brand       string  `json:"brand,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	URL         string  `json:"url,omitempty"`
	Excise      bool    `json:"excise,omitempty"`
	Seller      *Seller `json:"seller,omitempty"`
}

// Status is one entry of an order or print form status history.
type Status struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	DateTime   string `json:"date_time"`
	ReasonCode string `json:"reason_code,omitempty"`
	City       string `json:"city,omitempty"`
}

// Entity references the object an operation created or changed.
type Entity struct {
	UUID string `json:"uuid,omitempty"`
}

// RelatedEntity links an order to receipts, barcodes, returns and the like.
type RelatedEntity struct {
	Type       string `json:"type"`
	UUID       string `json:"uuid"`
	URL        string `json:"url,omitempty"`
	CDEKNumber string `json:"cdek_number,omitempty"`
	CreateTime string `json:"create_time,omitempty"`
}

// EntityOperation is the response to create, update and delete calls.
type EntityOperation struct {
	Entity          *Entity         `json:"entity,omitempty"`
	Requests        []RequestInfo   `json:"requests"`
	RelatedEntities []RelatedEntity `json:"related_entities,omitempty"`
}

// EntityUUID returns the uuid of the affected entity, or "".
func (o *EntityOperation) EntityUUID() string {
	if o == nil || o.Entity == nil {
		return ""
	}
	return o.Entity.UUID
}

// OrderRef points to an order by uuid or CDEK number.
type OrderRef struct {
	OrderUUID  string `json:"order_uuid,omitempty"`
	CDEKNumber int64  `json:"cdek_number,omitempty"`
}

// PrintForm is a waybill receipt or barcode document.
type PrintForm struct {
	Entity   *PrintFormEntity `json:"entity,omitempty"`
	Requests []RequestInfo    `json:"requests"`
}

// PrintFormEntity holds the state of a print form. URL is set once the
// document is ready and stays valid for an hour.
type PrintFormEntity struct {
	UUID      string     `json:"uuid"`
	Orders    []OrderRef `json:"orders"`
	CopyCount int        `json:"copy_count,omitempty"`
	Type      string     `json:"type,omitempty"`
	Format    string     `json:"format,omitempty"`
	URL       string     `json:"url,omitempty"`
	Statuses  []Status   `json:"statuses"`
}

// Ready reports whether the document can be downloaded.
func (p *PrintForm) Ready() bool {
	return p != nil && p.Entity != nil && p.Entity.URL != ""
}

// Region is a region returned by the location directory.
type Region struct {
	CountryCode     string    `json:"country_code"`
	Country         string    `json:"country"`
	Region          string    `json:"region"`
	Prefix          string    `json:"prefix,omitempty"`
	RegionCode      int       `json:"region_code,omitempty"`
	KladrRegionCode string    `json:"kladr_region_code,omitempty"`
	FiasRegionGUID  string    `json:"fias_region_guid,omitempty"`
	Errors          []Problem `json:"errors,omitempty"`
}

// City is a settlement returned by the location directory.
type City struct {
	Code            int       `json:"code"`
	City            string    `json:"city"`
	FiasGUID        string    `json:"fias_guid,omitempty"`
	KladrCode       string    `json:"kladr_code,omitempty"`
	CountryCode     string    `json:"country_code"`
	Country         string    `json:"country"`
	Region          string    `json:"region"`
	RegionCode      int       `json:"region_code,omitempty"`
	FiasRegionGUID  string    `json:"fias_region_guid,omitempty"`
	KladrRegionCode string    `json:"kladr_region_code,omitempty"`
	SubRegion       string    `json:"sub_region,omitempty"`
	Longitude       float64   `json:"longitude,omitempty"`
	Latitude        float64   `json:"latitude,omitempty"`
	TimeZone        string    `json:"time_zone,omitempty"`
	PaymentLimit    float64   `json:"payment_limit"`
	Errors          []Problem `json:"errors,omitempty"`
}

// WorkTime is the opening hours of an office on one weekday (1-7).
type WorkTime struct {
	Day  int    `json:"day"`
	Time string `json:"time"`
}

// DeliveryPoint is a pickup office or parcel locker.
type DeliveryPoint struct {
	Code                string     `json:"code"`
	Name                string     `json:"name"`
	Location            Location   `json:"location"`
	AddressComment      string     `json:"address_comment,omitempty"`
	NearestStation      string     `json:"nearest_station,omitempty"`
	NearestMetroStation string     `json:"nearest_metro_station,omitempty"`
	WorkTime            string     `json:"work_time"`
	Phones              []Phone    `json:"phones,omitempty"`
	Email               string     `json:"email,omitempty"`
	Note                string     `json:"note,omitempty"`
	Type                string     `json:"type"` // PVZ or POSTAMAT
	OwnerCode           string     `json:"owner_code"`
	TakeOnly            bool       `json:"take_only"`
	IsHandout           bool       `json:"is_handout"`
	IsReception         bool       `json:"is_reception"`
	IsDressingRoom      bool       `json:"is_dressing_room"`
	HaveCashless        bool       `json:"have_cashless"`
	HaveCash            bool       `json:"have_cash"`
	AllowedCOD          bool       `json:"allowed_cod"`
	Site                string     `json:"site,omitempty"`
	WorkTimeList        []WorkTime `json:"work_time_list"`
	WeightMin           float64    `json:"weight_min"`
	WeightMax           float64    `json:"weight_max,omitempty"`
	Fulfillment         bool       `json:"fulfillment"`
	Errors              []Problem  `json:"errors,omitempty"`
}

// Parcel is a package description used by the calculator.
type Parcel struct {
	Weight int `json:"weight"`
	Length int `json:"length,omitempty"`
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// TariffRequest asks the calculator for delivery cost. TariffCode is ignored
// by the tariff list call.
type TariffRequest struct {
	Date         string    `json:"date,omitempty"`
	Type         int       `json:"type,omitempty"`
	Currency     int       `json:"currency,omitempty"`
	TariffCode   int       `json:"tariff_code,omitempty"`
	FromLocation Location  `json:"from_location"`
	ToLocation   Location  `json:"to_location"`
	Services     []Service `json:"services,omitempty"`
	Packages     []Parcel  `json:"packages"`
	Lang         string    `json:"lang,omitempty"`
}

// DateRange is a forecast delivery window, yyyy-MM-dd.
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// TariffQuote is the cost of delivery under a single tariff.
type TariffQuote struct {
	DeliverySum       float64    `json:"delivery_sum"`
	PeriodMin         int        `json:"period_min"`
	PeriodMax         int        `json:"period_max"`
	WeightCalc        float64    `json:"weight_calc"`
	CalendarMin       int        `json:"calendar_min,omitempty"`
	CalendarMax       int        `json:"calendar_max,omitempty"`
	Services          []Service  `json:"services,omitempty"`
	TotalSum          float64    `json:"total_sum"`
	Currency          string     `json:"currency,omitempty"`
	DeliveryDateRange *DateRange `json:"delivery_date_range,omitempty"`
	Errors            []Problem  `json:"errors,omitempty"`
}

// TariffOption is one tariff available for a route.
type TariffOption struct {
	TariffCode        int        `json:"tariff_code"`
	TariffName        string     `json:"tariff_name"`
	TariffDescription string     `json:"tariff_description"`
	DeliveryMode      int        `json:"delivery_mode"`
	DeliverySum       float64    `json:"delivery_sum"`
	PeriodMin         int        `json:"period_min"`
	PeriodMax         int        `json:"period_max"`
	CalendarMin       int        `json:"calendar_min,omitempty"`
	CalendarMax       int        `json:"calendar_max,omitempty"`
	DeliveryDateRange *DateRange `json:"delivery_date_range,omitempty"`
}

// TariffList is the response of the tariff list call.
type TariffList struct {
	TariffCodes []TariffOption `json:"tariff_codes"`
	Errors      []Problem      `json:"errors,omitempty"`
}

// OrderRequest registers a new order.
type OrderRequest struct {
	Type                  int         `json:"type,omitempty"`
	Number                string      `json:"number,omitempty"`
	TariffCode            int         `json:"tariff_code"`
	Comment               string      `json:"comment,omitempty"`
	DeveloperKey          string      `json:"developer_key,omitempty"`
	ShipmentPoint         string      `json:"shipment_point,omitempty"`
	DeliveryPoint         string      `json:"delivery_point,omitempty"`
	DateInvoice           string      `json:"date_invoice,omitempty"`
	ShipperName           string      `json:"shipper_name,omitempty"`
	ShipperAddress        string      `json:"shipper_address,omitempty"`
	DeliveryRecipientCost *Money      `json:"delivery_recipient_cost,omitempty"`
	DeliveryRecipientAdv  []Threshold `json:"delivery_recipient_cost_adv,omitempty"`
	Sender                *Contact    `json:"sender,omitempty"`
	Seller                *Seller     `json:"seller,omitempty"`
	Recipient             Contact     `json:"recipient"`
	FromLocation          *Location   `json:"from_location,omitempty"`
	ToLocation            *Location   `json:"to_location,omitempty"`
	Services              []Service   `json:"services,omitempty"`
	Packages              []Package   `json:"packages"`
	Print                 string      `json:"print,omitempty"`
	IsClientReturn        bool        `json:"is_client_return,omitempty"`
}

// OrderUpdate changes an existing order identified by UUID or CDEKNumber.
type OrderUpdate struct {
	UUID                  string      `json:"uuid,omitempty"`
	CDEKNumber            int64       `json:"cdek_number,omitempty"`
	TariffCode            int         `json:"tariff_code,omitempty"`
	Comment               string      `json:"comment,omitempty"`
	ShipmentPoint         string      `json:"shipment_point,omitempty"`
	DeliveryPoint         string      `json:"delivery_point,omitempty"`
	DeliveryRecipientCost *Money      `json:"delivery_recipient_cost,omitempty"`
	DeliveryRecipientAdv  []Threshold `json:"delivery_recipient_cost_adv,omitempty"`
	Sender                *Contact    `json:"sender,omitempty"`
	Seller                *Seller     `json:"seller,omitempty"`
	Recipient             *Contact    `json:"recipient,omitempty"`
	ToLocation            *Location   `json:"to_location,omitempty"`
	FromLocation          *Location   `json:"from_location,omitempty"`
	Services              []Service   `json:"services,omitempty"`
	Packages              []Package   `json:"packages,omitempty"`
}

// DeliveryProblem is a problem registered while delivering an order.
type DeliveryProblem struct {
	Code       string `json:"code,omitempty"`
	CreateDate string `json:"create_date,omitempty"`
}

// Order is the full state of a registered order.
type Order struct {
	UUID                  string            `json:"uuid"`
	IsReturn              bool              `json:"is_return"`
	IsReverse             bool              `json:"is_reverse"`
	IsClientReturn        bool              `json:"is_client_return"`
	Type                  int               `json:"type"`
	CDEKNumber            string            `json:"cdek_number,omitempty"`
	Number                string            `json:"number,omitempty"`
	DeliveryMode          string            `json:"delivery_mode,omitempty"`
	TariffCode            int               `json:"tariff_code"`
	Comment               string            `json:"comment,omitempty"`
	ShipmentPoint         string            `json:"shipment_point,omitempty"`
	DeliveryPoint         string            `json:"delivery_point,omitempty"`
	DeliveryRecipientCost *Money            `json:"delivery_recipient_cost,omitempty"`
	Sender                Contact           `json:"sender"`
	Seller                *Seller           `json:"seller,omitempty"`
	Recipient             Contact           `json:"recipient"`
	FromLocation          *Location         `json:"from_location,omitempty"`
	ToLocation            *Location         `json:"to_location,omitempty"`
	Services              []Service         `json:"services,omitempty"`
	Packages              []Package         `json:"packages"`
	DeliveryProblem       []DeliveryProblem `json:"delivery_problem,omitempty"`
	DeliveryDate          string            `json:"delivery_date,omitempty"`
	TransactedPayment     bool              `json:"transacted_payment,omitempty"`
	Statuses              []Status          `json:"statuses"`
	PlannedDeliveryDate   string            `json:"planned_delivery_date,omitempty"`
	KeepFreeUntil         string            `json:"keep_free_until,omitempty"`
}

// LatestStatus returns the most recent status, or nil. The API lists the
// history newest first.
func (o *Order) LatestStatus() *Status {
	if o == nil || len(o.Statuses) == 0 {
		return nil
	}
	return &o.Statuses[0]
}

// OrderInfo is the response of the order lookup calls.
type OrderInfo struct {
	Entity          *Order          `json:"entity,omitempty"`
	Requests        []RequestInfo   `json:"requests,omitempty"`
	RelatedEntities []RelatedEntity `json:"related_entities,omitempty"`
}

// WebhookRequest subscribes url to events of one type.
type WebhookRequest struct {
	URL  string    `json:"url"`
	Type EventType `json:"type"`
}

// Webhook is a registered webhook subscription.
type Webhook struct {
	UUID string    `json:"uuid"`
	URL  string    `json:"url"`
	Type EventType `json:"type"`
}

// ReceiptRequest asks for a waybill receipt covering the given orders.
type ReceiptRequest struct {
	Orders    []OrderRef `json:"orders"`
	CopyCount int        `json:"copy_count,omitempty"`
	Type      string     `json:"type,omitempty"`
}

// BarcodeRequest asks for package barcodes for the given orders.
type BarcodeRequest struct {
	Orders    []OrderRef `json:"orders"`
	CopyCount int        `json:"copy_count,omitempty"`
	Format    string     `json:"format,omitempty"` // A4, A5 or A6
}
