package records

import "time"

// Timestamps is embedded by records that track creation and last update.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Timestamps) touch(now time.Time, creating bool) {
	if creating || t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

type toucher interface {
	touch(now time.Time, creating bool)
}

// Stamp sets the timestamps of item when the record type tracks them.
func Stamp(item any, now time.Time, creating bool) {
	if t, ok := item.(toucher); ok {
		t.touch(now.UTC(), creating)
	}
}

type Product struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description,omitempty" validate:"max=5000"`
	Brand       string   `json:"brand,omitempty"`
	Model       string   `json:"model,omitempty"`
	CategoryID  string   `json:"category_id,omitempty"`
	SKU         string   `json:"sku,omitempty"`
	Condition   string   `json:"condition,omitempty" validate:"omitempty,oneof=new used refurbished"`
	Price       float64  `json:"price" validate:"gte=0"`
	Cost        float64  `json:"cost,omitempty" validate:"gte=0"`
	Stock       int      `json:"stock"`
	Images      []string `json:"images,omitempty" validate:"dive,url"`
	Tags        []string `json:"tags,omitempty"`
	Featured    bool     `json:"featured"`
	Active      bool     `json:"active"`
	Position    int      `json:"position"`
	Timestamps
}

type Category struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name" validate:"required,max=120"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty" validate:"omitempty,url"`
	Active      bool   `json:"active"`
	Position    int    `json:"position"`
	Timestamps
}

type Customer struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Phone    string `json:"phone,omitempty"`
	Document string `json:"document,omitempty"`
	Address  string `json:"address,omitempty"`
	Notes    string `json:"notes,omitempty"`
	Timestamps
}

type SaleItem struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

type Sale struct {
	ID            string     `json:"id,omitempty"`
	CustomerID    string     `json:"customer_id,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	EmployeeID    string     `json:"employee_id,omitempty"`
	Items         []SaleItem `json:"items" validate:"required,min=1,dive"`
	Subtotal      float64    `json:"subtotal"`
	Discount      float64    `json:"discount" validate:"gte=0"`
	Total         float64    `json:"total"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty" validate:"omitempty,oneof=cash card pix transfer other"`
	Notes         string     `json:"notes,omitempty"`
	Timestamps
}

type ServiceOrderStatus string

const (
	ServiceOrderReceived   ServiceOrderStatus = "received"
	ServiceOrderDiagnosing ServiceOrderStatus = "diagnosing"
	ServiceOrderAwaiting   ServiceOrderStatus = "awaiting_approval"
	ServiceOrderRepairing  ServiceOrderStatus = "repairing"
	ServiceOrderReady      ServiceOrderStatus = "ready"
	ServiceOrderDelivered  ServiceOrderStatus = "delivered"
	ServiceOrderCancelled  ServiceOrderStatus = "cancelled"
)

type ServiceOrder struct {
	ID            string             `json:"id,omitempty"`
	Number        int64              `json:"number"`
	CustomerID    string             `json:"customer_id,omitempty"`
	CustomerName  string             `json:"customer_name" validate:"required"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Device        string             `json:"device" validate:"required"`
	Brand         string             `json:"brand,omitempty"`
	Model         string             `json:"model,omitempty"`
	SerialNumber  string             `json:"serial_number,omitempty"`
	Problem       string             `json:"problem" validate:"required"`
	Diagnosis     string             `json:"diagnosis,omitempty"`
	Status        ServiceOrderStatus `json:"status" validate:"omitempty,oneof=received diagnosing awaiting_approval repairing ready delivered cancelled"`
	Price         float64            `json:"price" validate:"gte=0"`
	Deposit       float64            `json:"deposit" validate:"gte=0"`
	Technician    string             `json:"technician,omitempty"`
	WarrantyDays  int                `json:"warranty_days" validate:"gte=0"`
	Notes         string             `json:"notes,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	Timestamps
}

type Employee struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string  `json:"phone,omitempty"`
	Role       string  `json:"role,omitempty"`
	Commission float64 `json:"commission" validate:"gte=0,lte=100"`
	Active     bool    `json:"active"`
	Timestamps
}

type Coupon struct {
	ID          string     `json:"id,omitempty"`
	Code        string     `json:"code" validate:"required,max=40"`
	Type        string     `json:"type" validate:"required,oneof=percent fixed"`
	Value       float64    `json:"value" validate:"gt=0"`
	MinPurchase float64    `json:"min_purchase" validate:"gte=0"`
	MaxUses     int        `json:"max_uses" validate:"gte=0"`
	Uses        int        `json:"uses"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Active      bool       `json:"active"`
	Timestamps
}

type Raffle struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description,omitempty"`
	Prize       string     `json:"prize" validate:"required"`
	DrawDate    *time.Time `json:"draw_date,omitempty"`
	Entries     []string   `json:"entries,omitempty"`
	WinnerID    string     `json:"winner_id,omitempty"`
	Status      string     `json:"status" validate:"omitempty,oneof=open drawn cancelled"`
	Timestamps
}

type Cost struct {
	ID          string    `json:"id,omitempty"`
	Description string    `json:"description" validate:"required"`
	Category    string    `json:"category,omitempty"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Date        time.Time `json:"date"`
	Recurring   bool      `json:"recurring"`
	Timestamps
}

type AuditLogEntry struct {
	ID         string         `json:"id,omitempty"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Collection string         `json:"collection"`
	DocID      string         `json:"doc_id,omitempty"`
	Changes    map[string]any `json:"changes,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ChatbotConfigID is the single current-config document of the chatbot collection.
const ChatbotConfigID = "config"

type ChatbotConfig struct {
	ID           string  `json:"id,omitempty"`
	Enabled      bool    `json:"enabled"`
	Name         string  `json:"name" validate:"required,max=80"`
	Greeting     string  `json:"greeting,omitempty" validate:"max=500"`
	SystemPrompt string  `json:"system_prompt" validate:"required"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature" validate:"gte=0,lte=2"`
	Version      int64   `json:"version"`
	UpdatedBy    string  `json:"updated_by,omitempty"`
	Timestamps
}

type ChatbotVersion struct {
	ID        string        `json:"id,omitempty"`
	Version   int64         `json:"version"`
	Config    ChatbotConfig `json:"config"`
	Note      string        `json:"note,omitempty"`
	CreatedBy string        `json:"created_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type KnowledgeBaseItem struct {
	ID      string   `json:"id,omitempty"`
	Title   string   `json:"title" validate:"required,max=200"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags,omitempty"`
	Active  bool     `json:"active"`
	Timestamps
}

type FAQEntry struct {
	ID       string `json:"id,omitempty"`
	Question string `json:"question" validate:"required,max=300"`
	Answer   string `json:"answer" validate:"required,max=3000"`
	Category string `json:"category,omitempty"`
	Active   bool   `json:"active"`
	Position int    `json:"position"`
	Timestamps
}

// ThemeSettingsID is the settings document holding the storefront theme.
const ThemeSettingsID = "theme"

type Theme struct {
	PrimaryColor    string `json:"primary_color,omitempty" validate:"omitempty,hexcolor"`
	SecondaryColor  string `json:"secondary_color,omitempty" validate:"omitempty,hexcolor"`
	AccentColor     string `json:"accent_color,omitempty" validate:"omitempty,hexcolor"`
	BackgroundColor string `json:"background_color,omitempty" validate:"omitempty,hexcolor"`
	TextColor       string `json:"text_color,omitempty" validate:"omitempty,hexcolor"`
	FontFamily      string `json:"font_family,omitempty"`
	LogoURL         string `json:"logo_url,omitempty" validate:"omitempty,url"`
	BannerURL       string `json:"banner_url,omitempty" validate:"omitempty,url"`
	Tagline         string `json:"tagline,omitempty" validate:"max=200"`
}

type Settings struct {
	ID        string `json:"id,omitempty"`
	StoreName string `json:"store_name,omitempty"`
	WhatsApp  string `json:"whatsapp,omitempty"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Address   string `json:"address,omitempty"`
	Hours     string `json:"hours,omitempty"`
	Theme     Theme  `json:"theme"`
	Timestamps
}
