package domain

import "time"

type Product struct {
	ID                string    `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	SellPriceCents    int64     `json:"sell_price_cents"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU               string `json:"sku"`
	Name              string `json:"name"`
	SellPriceCents    int64  `json:"sell_price_cents"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

type ProductUpdateRequest struct {
	Name              *string `json:"name,omitempty"`
	SellPriceCents    *int64  `json:"sell_price_cents,omitempty"`
	LowStockThreshold *int    `json:"low_stock_threshold,omitempty"`
	Active            *bool   `json:"active,omitempty"`
}

type Warehouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type WarehouseCreateRequest struct {
	Name string `json:"name"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// InventoryBatch is one lot of stock received into one warehouse at one unit
// cost. QtyRemaining is the only mutable field; QtyOriginal and BuyPriceCents
// are fixed at creation. ReceivedAt orders consumption (oldest first).
type InventoryBatch struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	WarehouseID   string    `json:"warehouse_id"`
	QtyOriginal   int       `json:"qty_original"`
	QtyRemaining  int       `json:"qty_remaining"`
	BuyPriceCents int64     `json:"buy_price_cents"`
	SourceType    string    `json:"source_type"`
	SourceID      string    `json:"source_id,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

type ReceiveStockRequest struct {
	ProductID     string `json:"product_id"`
	WarehouseID   string `json:"warehouse_id"`
	Qty           int    `json:"qty"`
	BuyPriceCents int64  `json:"buy_price_cents"`
	ReceivedAt    string `json:"received_at,omitempty"`
}

type BatchListResponse struct {
	Batches []InventoryBatch `json:"batches"`
}

type BatchAdjustRequest struct {
	QtyRemaining int    `json:"qty_remaining"`
	Reason       string `json:"reason"`
}

type CheckoutLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	SellPriceCents int64  `json:"sell_price_cents"`
}

type CheckoutRequest struct {
	WarehouseID string         `json:"warehouse_id"`
	CustomerID  string         `json:"customer_id,omitempty"`
	Lines       []CheckoutLine `json:"lines"`
}

type TransactionItem struct {
	ProductID          string `json:"product_id"`
	ProductName        string `json:"product_name,omitempty"`
	Qty                int    `json:"qty"`
	SellPriceCents     int64  `json:"sell_price_cents"`
	BuyPriceTotalCents int64  `json:"buy_price_total_cents"`
}

type Transaction struct {
	ID          string            `json:"id"`
	WarehouseID string            `json:"warehouse_id"`
	CustomerID  string            `json:"customer_id,omitempty"`
	CashierID   string            `json:"cashier_id"`
	TotalCents  int64             `json:"total_cents"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Items       []TransactionItem `json:"items"`
}

type CheckoutResponse struct {
	Transaction Transaction `json:"transaction"`
}

type TransferRequest struct {
	ProductID       string `json:"product_id"`
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	Qty             int    `json:"qty"`
}

type StockTransfer struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	FromWarehouseID string    `json:"from_warehouse_id"`
	ToWarehouseID   string    `json:"to_warehouse_id"`
	Qty             int       `json:"qty"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

type TransferResponse struct {
	Transfer StockTransfer `json:"transfer"`
}

type OpnameRequest struct {
	WarehouseID string `json:"warehouse_id"`
	ProductID   string `json:"product_id"`
	CountedQty  int    `json:"counted_qty"`
	Notes       string `json:"notes"`
}

// StockOpname records a physical count against the system figure. It is an
// audit entry only; batch quantities are never changed by an opname.
type StockOpname struct {
	ID          string    `json:"id"`
	WarehouseID string    `json:"warehouse_id"`
	ProductID   string    `json:"product_id"`
	SystemQty   int       `json:"system_qty"`
	CountedQty  int       `json:"counted_qty"`
	Difference  int       `json:"difference"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type OpnameResponse struct {
	Opname StockOpname `json:"opname"`
}

type OpnameListResponse struct {
	Opnames []StockOpname `json:"opnames"`
}

type VoidTransactionRequest struct {
	Reason string `json:"reason"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	WarehouseID string `json:"warehouse_id,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username    string
	Role        string
	WarehouseID string
}

type StockOnHand struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Qty         int    `json:"qty"`
}

type LowStockAlert struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	WarehouseID string `json:"warehouse_id"`
	Qty         int    `json:"qty"`
	Threshold   int    `json:"threshold"`
}

type LowStockResponse struct {
	WarehouseID string          `json:"warehouse_id,omitempty"`
	GeneratedAt string          `json:"generated_at"`
	Alerts      []LowStockAlert `json:"alerts"`
}

type DailySalesProduct struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	QtySold      int    `json:"qty_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type DailySalesReport struct {
	WarehouseID  string              `json:"warehouse_id,omitempty"`
	Date         string              `json:"date"`
	Transactions int64               `json:"transactions"`
	RevenueCents int64               `json:"revenue_cents"`
	COGSCents    int64               `json:"cogs_cents"`
	ProfitCents  int64               `json:"profit_cents"`
	TopProducts  []DailySalesProduct `json:"top_products"`
}

type IncomingStockRow struct {
	BatchID       string    `json:"batch_id"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	WarehouseID   string    `json:"warehouse_id"`
	Qty           int       `json:"qty"`
	BuyPriceCents int64     `json:"buy_price_cents"`
	SourceType    string    `json:"source_type"`
	ReceivedAt    time.Time `json:"received_at"`
}

type IncomingStockReport struct {
	From time.Time          `json:"from"`
	To   time.Time          `json:"to"`
	Rows []IncomingStockRow `json:"rows"`
}

// StockMutation is one row of the interleaved transfer/opname history view.
type StockMutation struct {
	Type        string    `json:"type"`
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	WarehouseID string    `json:"warehouse_id"`
	Qty         int       `json:"qty"`
	Detail      string    `json:"detail,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type MutationReport struct {
	Rows []StockMutation `json:"rows"`
}

type SalesReportRow struct {
	TransactionID string    `json:"transaction_id"`
	WarehouseID   string    `json:"warehouse_id"`
	CustomerName  string    `json:"customer_name"`
	CashierID     string    `json:"cashier_id"`
	TotalCents    int64     `json:"total_cents"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	WarehouseID string `json:"warehouse_id,omitempty"`
}

type UserView struct {
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	WarehouseID string    `json:"warehouse_id,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username    string
	Password    string
	Role        string
	WarehouseID string
	Active      bool
	CreatedAt   time.Time
}

const (
	RoleSuperadmin = "superadmin"
	RoleGudang     = "gudang"
	RoleKasir      = "kasir"
)

const (
	TxStatusCompleted = "completed"
	TxStatusVoided    = "voided"
)

const (
	BatchSourceReceiving  = "receiving"
	BatchSourceTransfer   = "transfer"
	BatchSourceAdjustment = "adjustment"
)

const (
	MutationTransfer = "TRANSFER"
	MutationOpname   = "OPNAME"
)
