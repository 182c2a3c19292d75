package domain

// Kind is the discriminant of an Event. It is derived from the concrete
// variant type, so it cannot change once an Event has been constructed.
type Kind string

const (
	KindPageView       Kind = "page_view"
	KindCustom         Kind = "custom"
	KindClick          Kind = "click"
	KindFormSubmit     Kind = "form_submit"
	KindViewItem       Kind = "view_item"
	KindAddToCart      Kind = "add_to_cart"
	KindRemoveFromCart Kind = "remove_from_cart"
	KindBeginCheckout  Kind = "begin_checkout"
	KindPurchase       Kind = "purchase"
	KindRefund         Kind = "refund"
	KindSearch         Kind = "search"
	KindVideoStart     Kind = "video_start"
	KindVideoProgress  Kind = "video_progress"
	KindVideoComplete  Kind = "video_complete"
	KindFileDownload   Kind = "file_download"
	KindScroll         Kind = "scroll"
	KindSessionStart   Kind = "session_start"
	KindUserEngagement Kind = "user_engagement"
)

// Event is one user action. The variant set is closed: only the variant types
// in this package implement it. The marker lives on each variant, not on the
// embedded EventParams, so embedding EventParams elsewhere does not satisfy it.
type Event interface {
	Kind() Kind
	Params() *EventParams
	Validate() []FieldError
	isEvent()
}

// EventParams holds the fields shared by every variant. All of them are optional.
type EventParams struct {
	UserID           string             `json:"user_id,omitempty"`
	SessionID        string             `json:"session_id,omitempty"`
	ClientID         string             `json:"client_id,omitempty"`
	UserAgent        string             `json:"user_agent,omitempty"`
	IPAddress        string             `json:"ip_address,omitempty"`
	Language         string             `json:"language,omitempty"`
	ScreenResolution string             `json:"screen_resolution,omitempty"`
	ViewportSize     string             `json:"viewport_size,omitempty"`
	DeviceCategory   string             `json:"device_category,omitempty"`
	OS               string             `json:"os,omitempty"`
	Browser          string             `json:"browser,omitempty"`
	CustomDimensions map[string]string  `json:"custom_dimensions,omitempty"`
	CustomMetrics    map[string]float64 `json:"custom_metrics,omitempty"`

	// DoNotTrack and ConsentGranted are set by the ingress from request signals.
	DoNotTrack     bool `json:"do_not_track,omitempty"`
	ConsentGranted bool `json:"consent_granted,omitempty"`
}

func (p *EventParams) Params() *EventParams { return p }

// Validate is the default for variants without mandatory business fields.
func (p *EventParams) Validate() []FieldError { return nil }

// Item is an e-commerce line item.
type Item struct {
	ItemID        string   `json:"item_id"`
	ItemName      string   `json:"item_name"`
	ItemBrand     string   `json:"item_brand,omitempty"`
	ItemCategory  string   `json:"item_category,omitempty"`
	ItemCategory2 string   `json:"item_category2,omitempty"`
	ItemVariant   string   `json:"item_variant,omitempty"`
	Price         float64  `json:"price"`
	Quantity      int      `json:"quantity"`
	Coupon        string   `json:"coupon,omitempty"`
	Discount      *float64 `json:"discount,omitempty"`
}

type PageView struct {
	PageTitle    string `json:"page_title"`
	PageLocation string `json:"page_location"`
	PageReferrer string `json:"page_referrer,omitempty"`
	EventParams
}

func (*PageView) Kind() Kind { return KindPageView }
func (*PageView) isEvent() {}

type Custom struct {
	Name string `json:"name"`
	EventParams
}

func (*Custom) Kind() Kind { return KindCustom }
func (*Custom) isEvent() {}

type Click struct {
	ElementID    string `json:"element_id,omitempty"`
	ElementClass string `json:"element_class,omitempty"`
	ElementText  string `json:"element_text,omitempty"`
	LinkURL      string `json:"link_url,omitempty"`
	EventParams
}

func (*Click) Kind() Kind { return KindClick }
func (*Click) isEvent() {}

type FormSubmit struct {
	FormID   string `json:"form_id"`
	FormName string `json:"form_name,omitempty"`
	EventParams
}

func (*FormSubmit) Kind() Kind { return KindFormSubmit }
func (*FormSubmit) isEvent() {}

type ViewItem struct {
	Items    []Item   `json:"items,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Currency string   `json:"currency,omitempty"`
	EventParams
}

func (*ViewItem) Kind() Kind { return KindViewItem }
func (*ViewItem) isEvent() {}

type AddToCart struct {
	Items    []Item   `json:"items,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Currency string   `json:"currency,omitempty"`
	EventParams
}

func (*AddToCart) Kind() Kind { return KindAddToCart }
func (*AddToCart) isEvent() {}

type RemoveFromCart struct {
	Items    []Item   `json:"items,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Currency string   `json:"currency,omitempty"`
	EventParams
}

func (*RemoveFromCart) Kind() Kind { return KindRemoveFromCart }
func (*RemoveFromCart) isEvent() {}

type BeginCheckout struct {
	Items    []Item   `json:"items,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Coupon   string   `json:"coupon,omitempty"`
	EventParams
}

func (*BeginCheckout) Kind() Kind { return KindBeginCheckout }
func (*BeginCheckout) isEvent() {}

type Purchase struct {
	TransactionID string   `json:"transaction_id"`
	Value         *float64 `json:"value,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Tax           *float64 `json:"tax,omitempty"`
	Shipping      *float64 `json:"shipping,omitempty"`
	Items         []Item   `json:"items,omitempty"`
	Coupon        string   `json:"coupon,omitempty"`
	EventParams
}

func (*Purchase) Kind() Kind { return KindPurchase }
func (*Purchase) isEvent() {}

type Refund struct {
	TransactionID string   `json:"transaction_id"`
	Value         *float64 `json:"value,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	Items         []Item   `json:"items,omitempty"`
	EventParams
}

func (*Refund) Kind() Kind { return KindRefund }
func (*Refund) isEvent() {}

type Search struct {
	SearchTerm string `json:"search_term"`
	EventParams
}

func (*Search) Kind() Kind { return KindSearch }
func (*Search) isEvent() {}

type VideoStart struct {
	VideoTitle    string `json:"video_title"`
	VideoURL      string `json:"video_url"`
	VideoProvider string `json:"video_provider,omitempty"`
	EventParams
}

func (*VideoStart) Kind() Kind { return KindVideoStart }
func (*VideoStart) isEvent() {}

type VideoProgress struct {
	VideoTitle   string `json:"video_title"`
	VideoURL     string `json:"video_url"`
	VideoPercent uint8  `json:"video_percent"`
	EventParams
}

func (*VideoProgress) Kind() Kind { return KindVideoProgress }
func (*VideoProgress) isEvent() {}

type VideoComplete struct {
	VideoTitle string `json:"video_title"`
	VideoURL   string `json:"video_url"`
	EventParams
}

func (*VideoComplete) Kind() Kind { return KindVideoComplete }
func (*VideoComplete) isEvent() {}

type FileDownload struct {
	FileName      string `json:"file_name"`
	FileExtension string `json:"file_extension"`
	LinkURL       string `json:"link_url"`
	EventParams
}

func (*FileDownload) Kind() Kind { return KindFileDownload }
func (*FileDownload) isEvent() {}

type Scroll struct {
	PercentScrolled uint8 `json:"percent_scrolled"`
	EventParams
}

func (*Scroll) Kind() Kind { return KindScroll }
func (*Scroll) isEvent() {}

type SessionStart struct {
	EventParams
}

func (*SessionStart) Kind() Kind { return KindSessionStart }
func (*SessionStart) isEvent() {}

type UserEngagement struct {
	EngagementTimeMsec uint64 `json:"engagement_time_msec"`
	EventParams
}

func (*UserEngagement) Kind() Kind { return KindUserEngagement }
func (*UserEngagement) isEvent() {}

var prototypes = map[Kind]func() Event{
	KindPageView:       func() Event { return &PageView{} },
	KindCustom:         func() Event { return &Custom{} },
	KindClick:          func() Event { return &Click{} },
	KindFormSubmit:     func() Event { return &FormSubmit{} },
	KindViewItem:       func() Event { return &ViewItem{} },
	KindAddToCart:      func() Event { return &AddToCart{} },
	KindRemoveFromCart: func() Event { return &RemoveFromCart{} },
	KindBeginCheckout:  func() Event { return &BeginCheckout{} },
	KindPurchase:       func() Event { return &Purchase{} },
	KindRefund:         func() Event { return &Refund{} },
	KindSearch:         func() Event { return &Search{} },
	KindVideoStart:     func() Event { return &VideoStart{} },
	KindVideoProgress:  func() Event { return &VideoProgress{} },
	KindVideoComplete:  func() Event { return &VideoComplete{} },
	KindFileDownload:   func() Event { return &FileDownload{} },
	KindScroll:         func() Event { return &Scroll{} },
	KindSessionStart:   func() Event { return &SessionStart{} },
	KindUserEngagement: func() Event { return &UserEngagement{} },
}

var kinds = []Kind{
	KindPageView, KindCustom, KindClick, KindFormSubmit,
	KindViewItem, KindAddToCart, KindRemoveFromCart, KindBeginCheckout, KindPurchase, KindRefund,
	KindSearch, KindVideoStart, KindVideoProgress, KindVideoComplete,
	KindFileDownload, KindScroll, KindSessionStart, KindUserEngagement,
}

// Kinds returns every variant discriminant in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// New returns a zero value of the variant identified by kind.
func New(kind Kind) (Event, bool) {
	f, ok := prototypes[kind]
	if !ok {
		return nil, false
	}
	return f(), true
}
